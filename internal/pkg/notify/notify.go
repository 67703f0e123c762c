package notify

// Notifier 定义通知接口。
//
// 所有方法都是调用方视角的 fire-and-forget：失败只记日志，
// 不阻塞主流程（注册时的激活邮件除外，见 auth.Register）。
type Notifier interface {
	// SendActivation 发送注册确认邮件，link 是激活链接。
	SendActivation(toEmail, username, link string) error
	// SendPasswordReset 发送密码重置邮件，link 是重置链接。
	SendPasswordReset(toEmail, username, link string) error
	// SendPasswordChanged 发送密码已修改的确认邮件。
	SendPasswordChanged(toEmail, username string) error
	// SendWishAdded 通知管理员有用户许愿了一张卡片。
	SendWishAdded(username, cardName string) error
	// SendWishFulfilled 通知用户愿望已寄出。
	SendWishFulfilled(toEmail, username, cardName string) error
}
