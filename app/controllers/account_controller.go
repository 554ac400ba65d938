package controllers

// AccountController 登录、注册与用户信息占位接口
type AccountController struct {
	BaseController
}

// Login POST /api/login
func (c *AccountController) Login() {
	c.OK(map[string]bool{"ok": true})
}

// Register POST /api/register
func (c *AccountController) Register() {
	c.OK(map[string]bool{"ok": true})
}

// Profile GET /api/user
func (c *AccountController) Profile() {
	c.OK(map[string]bool{"ok": true})
}
