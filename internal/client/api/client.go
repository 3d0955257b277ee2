// Package api 封装 phctl 与服务端的 HTTP API 交互
// 服务端的统一响应 {code,message,data} 在这里转换回 apperr 错误种类
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/pkg/response"
)

// Client API 客户端
// baseURL: 例如 http://localhost:8080
// token: 登录后设置，之后的请求都带 Bearer 头
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient 创建 API 客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken 设置访问 token
func (c *Client) SetToken(token string) { c.token = token }

// Token 当前 token
func (c *Client) Token() string { return c.token }

// BaseURL 服务端地址
func (c *Client) BaseURL() string { return c.baseURL }

// APIResponse 统一响应
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// --- 认证 ---

// LoginResponse 登录结果
type LoginResponse struct {
	Success            bool       `json:"success"`
	User               model.User `json:"user"`
	Token              string     `json:"token"`
	ExpiresIn          int64      `json:"expires_in"`
	MustChangePassword bool       `json:"must_change_password"`
}

// Login 使用用户名密码登录，成功后自动保存 token
// 用户名不存在和密码错误返回同一个 Auth 错误
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var result LoginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.token = result.Token
	return &result, nil
}

// Logout 使服务端的 token 失效
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// --- 快照 ---

// LoadAll 读取当前用户可见的全量快照
func (c *Client) LoadAll(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.call(ctx, http.MethodGet, "/api/v1/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	if snap.Users == nil {
		snap.Users = []model.User{}
	}
	if snap.Powerhouses == nil {
		snap.Powerhouses = []model.Powerhouse{}
	}
	return &snap, nil
}

// ReplaceAll 提交全量快照
func (c *Client) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	return c.call(ctx, http.MethodPut, "/api/v1/snapshot", snap, nil)
}

// Users 用户列表（管理员）
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := c.call(ctx, http.MethodGet, "/api/v1/users", nil, &users)
	return users, err
}

// Powerhouses 可见的电站列表
func (c *Client) Powerhouses(ctx context.Context) ([]model.Powerhouse, error) {
	var phs []model.Powerhouse
	err := c.call(ctx, http.MethodGet, "/api/v1/powerhouses", nil, &phs)
	return phs, err
}

// --- 账户 ---

// SearchResult 账户查询结果
type SearchResult struct {
	Found   bool           `json:"found"`
	Account *model.Account `json:"account,omitempty"`
}

// SearchAccount 在电站内按 ID 查找账户
func (c *Client) SearchAccount(ctx context.Context, powerhouse, id string) (*SearchResult, error) {
	var res SearchResult
	path := "/api/v1/accounts/search/" + url.PathEscape(powerhouse) + "/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportCSV 下载 CSV 并写入 w
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/accounts/export", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		_, err := decode(resp)
		if err == nil {
			err = fmt.Errorf("unexpected export response (HTTP %d)", resp.StatusCode)
		}
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// ObjectInfo 对象存储中的对象
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// ArchiveCSV 让服务端把 CSV 归档到对象存储
func (c *Client) ArchiveCSV(ctx context.Context) (*ObjectInfo, error) {
	var info ObjectInfo
	if err := c.call(ctx, http.MethodPost, "/api/v1/accounts/export/archive", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// --- 备份 ---

// ListBackups 备份列表，最新的在前
func (c *Client) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	var list []ObjectInfo
	err := c.call(ctx, http.MethodGet, "/api/v1/backups", nil, &list)
	return list, err
}

// RestoreBackup 用备份替换全部数据
func (c *Client) RestoreBackup(ctx context.Context, key string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/backups/restore", map[string]string{"key": key}, nil)
}

// --- 通用请求封装 ---

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call 发送请求并把 data 解析到 out（out 为 nil 时忽略）
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	apiResp, err := decode(resp)
	if err != nil {
		return err
	}
	if out == nil || len(apiResp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(apiResp.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decode 解析统一响应，code 非 0 时转换成对应的 apperr 错误
func decode(resp *http.Response) (*APIResponse, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(err)
	}
	var apiResp APIResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("malformed response (HTTP %d)", resp.StatusCode)
	}
	if apiResp.Code != response.CodeSuccess {
		return nil, &apperr.Error{Kind: kindOf(apiResp.Code), Message: apiResp.Message}
	}
	return &apiResp, nil
}

func kindOf(code int) apperr.Kind {
	switch code {
	case response.CodeBadRequest, response.CodeBodyTooLarge:
		return apperr.KindValidation
	case response.CodeUnauthorized, response.CodeInvalidCredentials:
		return apperr.KindAuth
	case response.CodeForbidden:
		return apperr.KindForbidden
	case response.CodeNotFound:
		return apperr.KindNotFound
	case response.CodeStoreUnavailable:
		return apperr.KindStoreUnavailable
	default:
		return apperr.KindInternal
	}
}

// unavailable 网络错误对调用方而言等同于存储不可达
func unavailable(err error) error {
	return apperr.Unavailable("request", err)
}
