package ez

// Routes 模块挂载时拿到的两个入口：公开分组和已过 Protect 的分组
type Routes struct {
	Public  EZ
	Private EZ
}
