package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yosssi/gohtml"

	"skill-swap/backend/internal/model"
)

// ── 邮件模板 ──
// 每种通知一个固定模板：称呼、正文、唯一的跳转链接、落款

const layoutTpl = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="margin:0;padding:24px;background:#f3f4f6;font-family:-apple-system,'Segoe UI',Roboto,sans-serif;">
<div style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:12px;overflow:hidden;">
<div style="padding:28px;text-align:center;border-bottom:1px solid #e5e7eb;">
<h1 style="margin:0;color:{{.Accent}};font-size:26px;">SkillSwap</h1>
<h2 style="margin:8px 0 0;color:#4b5563;font-weight:500;">{{.Heading}}</h2>
</div>
<div style="padding:28px;color:#374151;line-height:1.6;">
<p>Hi <strong>{{.Salutation}}</strong>,</p>
{{template "body" .}}
<p><a href="{{.Link}}" style="display:inline-block;padding:12px 24px;border-radius:8px;background:{{.Accent}};color:#ffffff;text-decoration:none;font-weight:600;">{{.LinkText}}</a></p>
<p style="color:#9ca3af;font-size:14px;border-top:1px solid #e5e7eb;padding-top:16px;">{{.Closing}}<br><strong>The SkillSwap Team</strong></p>
</div>
</div>
</body>
</html>{{end}}`

var bodyTpls = map[string]string{
	model.NotificationRequestSent: `{{define "body"}}<p>You have received a new skill swap request from <strong>{{.FromUserName}}</strong>.</p>
<blockquote style="margin:16px 0;padding:16px;background:#f9fafb;border-left:4px solid {{.Accent}};font-style:italic;">{{.Message}}</blockquote>
<p>Open your requests to review the details and respond.</p>{{end}}`,

	model.NotificationRequestAccepted: `{{define "body"}}<p><strong>{{.ToUserName}}</strong> has accepted your skill swap request.</p>
<p>Next steps:</p>
<ul>
<li>Agree on a meeting schedule</li>
<li>Pick a communication platform</li>
<li>Decide which topics to cover first</li>
</ul>{{end}}`,

	model.NotificationRequestRejected: `{{define "body"}}<p><strong>{{.ToUserName}}</strong> has decided not to go ahead with your skill swap request this time.</p>
<p>Plenty of other people on SkillSwap are looking for what you offer. Keep browsing and sending requests.</p>{{end}}`,

	model.NotificationEmailConfirm: `{{define "body"}}<p>Thanks for joining SkillSwap. Please confirm your e-mail address to activate your account.</p>
<p style="color:#6b7280;font-size:14px;">If you did not sign up, you can ignore this message.</p>{{end}}`,
}

type kindStyle struct {
	subject  func(ev Event) string
	heading  string
	accent   string
	path     string
	linkText string
	closing  string
	toSender bool // 称呼发起方还是接收方
}

var kindStyles = map[string]kindStyle{
	model.NotificationRequestSent: {
		subject:  func(ev Event) string { return "New Skill Swap Request from " + ev.FromUserName },
		heading:  "New Skill Exchange Request",
		accent:   "#6366f1",
		path:     "/requests",
		linkText: "View Request",
		closing:  "Best regards,",
	},
	model.NotificationRequestAccepted: {
		subject:  func(Event) string { return "Your skill swap request was accepted!" },
		heading:  "Request Accepted",
		accent:   "#10b981",
		path:     "/requests",
		linkText: "View Details",
		closing:  "Happy learning!",
		toSender: true,
	},
	model.NotificationRequestRejected: {
		subject:  func(Event) string { return "Update on your skill swap request" },
		heading:  "Request Update",
		accent:   "#f59e0b",
		path:     "/browse",
		linkText: "Browse More Skills",
		closing:  "Keep exploring!",
		toSender: true,
	},
	model.NotificationEmailConfirm: {
		subject:  func(Event) string { return "Confirm your SkillSwap account" },
		heading:  "Confirm Your E-mail",
		accent:   "#6366f1",
		linkText: "Confirm E-mail",
		closing:  "Welcome aboard,",
	},
}

type templateData struct {
	Event
	Heading    string
	Accent     string
	Salutation string
	Link       string
	LinkText   string
	Closing    string
}

// Renderer 渲染通知主题与 HTML 正文
type Renderer struct {
	siteURL   string
	templates map[string]*template.Template
}

// NewRenderer 预编译全部模板；siteURL 为前端站点根地址
func NewRenderer(siteURL string) (*Renderer, error) {
	r := &Renderer{
		siteURL:   strings.TrimRight(siteURL, "/"),
		templates: make(map[string]*template.Template, len(bodyTpls)),
	}
	for kind, body := range bodyTpls {
		t, err := template.New(kind).Parse(layoutTpl)
		if err != nil {
			return nil, fmt.Errorf("解析邮件布局失败: %w", err)
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("解析 %s 模板失败: %w", kind, err)
		}
		r.templates[kind] = t
	}
	return r, nil
}

// Render 渲染一条通知，返回主题与格式化后的 HTML
func (r *Renderer) Render(ev Event) (subject, html string, err error) {
	style, ok := kindStyles[ev.Kind]
	if !ok || ev.Kind == model.NotificationEmailConfirm {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, ev.Kind)
	}
	salutation := ev.ToUserName
	if style.toSender {
		salutation = ev.FromUserName
	}
	return r.render(ev, style, salutation, r.siteURL+style.path)
}

// RenderConfirmation 渲染注册确认邮件，link 为完整的确认地址
func (r *Renderer) RenderConfirmation(name, link string) (subject, html string, err error) {
	ev := Event{Kind: model.NotificationEmailConfirm, ToUserName: name}
	return r.render(ev, kindStyles[model.NotificationEmailConfirm], name, link)
}

func (r *Renderer) render(ev Event, style kindStyle, salutation, link string) (string, string, error) {
	if salutation == "" {
		salutation = "there"
	}
	data := templateData{
		Event:      ev,
		Heading:    style.heading,
		Accent:     style.accent,
		Salutation: salutation,
		Link:       link,
		LinkText:   style.linkText,
		Closing:    style.closing,
	}

	var buf bytes.Buffer
	if err := r.templates[ev.Kind].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("渲染 %s 模板失败: %w", ev.Kind, err)
	}
	return style.subject(ev), gohtml.Format(buf.String()), nil
}
