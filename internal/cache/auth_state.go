package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gateway-next/internal/models"
)

const authStateCacheTTL = 10 * time.Minute

// AdminAuthState 管理员鉴权快照
// token_invalid_before 为 Unix 秒时间戳，0 表示未设置
type AdminAuthState struct {
	AdminID            uint   `json:"admin_id"`
	Username           string `json:"username"`
	TokenVersion       uint64 `json:"token_version"`
	TokenInvalidBefore int64  `json:"token_invalid_before"`
	IsSuper            bool   `json:"is_super"`
	UpdatedAt          int64  `json:"updated_at"`
}

// AppAuthState 商户应用鉴权快照（按 API 密钥缓存）
type AppAuthState struct {
	AppID     uint   `json:"app_id"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	NotifyURL string `json:"notify_url"`
	IsActive  bool   `json:"is_active"`
	UpdatedAt int64  `json:"updated_at"`
}

// ToApp 还原为应用模型
func (s *AppAuthState) ToApp() *models.App {
	if s == nil {
		return nil
	}
	return &models.App{
		ID:        s.AppID,
		Name:      s.Name,
		APIKey:    s.APIKey,
		NotifyURL: s.NotifyURL,
		IsActive:  s.IsActive,
	}
}

func adminAuthStateKey(adminID uint) string {
	return fmt.Sprintf("auth:admin:%d", adminID)
}

func appAuthStateKey(apiKey string) string {
	return "auth:app:" + apiKey
}

// BuildAdminAuthState 从管理员模型构建鉴权快照
func BuildAdminAuthState(admin *models.Admin) *AdminAuthState {
	if admin == nil {
		return nil
	}
	state := &AdminAuthState{
		AdminID:      admin.ID,
		Username:     admin.Username,
		TokenVersion: admin.TokenVersion,
		IsSuper:      admin.IsSuper,
		UpdatedAt:    time.Now().Unix(),
	}
	if admin.TokenInvalidBefore != nil {
		state.TokenInvalidBefore = admin.TokenInvalidBefore.Unix()
	}
	return state
}

// GetAdminAuthState 获取管理员鉴权快照
func GetAdminAuthState(ctx context.Context, adminID uint) (*AdminAuthState, bool, error) {
	if adminID == 0 {
		return nil, false, nil
	}
	var state AdminAuthState
	hit, err := GetJSON(ctx, adminAuthStateKey(adminID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetAdminAuthState 写入管理员鉴权快照
func SetAdminAuthState(ctx context.Context, state *AdminAuthState) error {
	if state == nil || state.AdminID == 0 {
		return nil
	}
	return SetJSON(ctx, adminAuthStateKey(state.AdminID), state, authStateCacheTTL)
}

// DelAdminAuthState 删除管理员鉴权快照
func DelAdminAuthState(ctx context.Context, adminID uint) error {
	if adminID == 0 {
		return nil
	}
	return Del(ctx, adminAuthStateKey(adminID))
}

// BuildAppAuthState 从应用模型构建鉴权快照
func BuildAppAuthState(app *models.App) *AppAuthState {
	if app == nil {
		return nil
	}
	return &AppAuthState{
		AppID:     app.ID,
		Name:      app.Name,
		APIKey:    app.APIKey,
		NotifyURL: app.NotifyURL,
		IsActive:  app.IsActive,
		UpdatedAt: time.Now().Unix(),
	}
}

// GetAppAuthState 获取应用鉴权快照
func GetAppAuthState(ctx context.Context, apiKey string) (*AppAuthState, bool, error) {
	if apiKey == "" {
		return nil, false, nil
	}
	var state AppAuthState
	hit, err := GetJSON(ctx, appAuthStateKey(apiKey), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetAppAuthState 写入应用鉴权快照
func SetAppAuthState(ctx context.Context, state *AppAuthState) error {
	if state == nil || state.AppID == 0 {
		return nil
	}
	return SetJSON(ctx, appAuthStateKey(state.APIKey), state, authStateCacheTTL)
}

// DelAppAuthState 删除应用鉴权快照
func DelAppAuthState(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return nil
	}
	return Del(ctx, appAuthStateKey(apiKey))
}
