package newsletter

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/model"

	"gopkg.in/mail.v2"
	"gorm.io/gorm"
)

// Sender 发送一批邮件，*mail.Dialer 满足该接口。
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// NewSMTPSender 465 端口走 SSL，其他端口按需 STARTTLS。
func NewSMTPSender(host string, port int, username, password string, timeout time.Duration) *mail.Dialer {
	d := mail.NewDialer(host, port, username, strings.ReplaceAll(password, " ", ""))
	d.Timeout = timeout
	return d
}

var productTmpl = template.Must(template.New("new_product").Parse(`<!doctype html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<h2>{{.Title}}</h2>
{{if .Cover}}<p><img src="{{.Cover}}" alt="{{.Title}}" style="max-width:480px"></p>{{end}}
<p>{{if .Discounted}}<s>{{.Price}}</s> <strong>{{.Effective}}</strong>{{else}}<strong>{{.Effective}}</strong>{{end}}</p>
<p><a href="{{.URL}}">Voir le produit</a></p>
</body></html>`))

type productView struct {
	Title      string
	Cover      string
	Price      string
	Effective  string
	Discounted bool
	URL        string
}

// Announcer 新商品上架时给全部订阅者发通知。
// 发送在后台 goroutine 中进行，失败只记日志，不影响触发它的请求。
type Announcer struct {
	DB       *gorm.DB
	Sender   Sender
	From     string
	FromName string
	SiteURL  string
	Logger   *slog.Logger

	wg sync.WaitGroup
}

// Enabled 未配置发件人或 Sender 时不发送。
func (a *Announcer) Enabled() bool {
	return a != nil && a.Sender != nil && a.From != ""
}

// Queue 异步发送，立即返回。
func (a *Announcer) Queue(p model.Product) {
	if !a.Enabled() {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger().Error("announcement panicked", "product_id", p.ID, "panic", r)
			}
		}()
		if err := a.Send(p); err != nil {
			a.logger().Error("announcement failed", "product_id", p.ID, "error", err)
		}
	}()
}

// Wait 等待已排队的发送结束（退出前调用）。
func (a *Announcer) Wait() {
	a.wg.Wait()
}

func (a *Announcer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Send 同步渲染并发送，一个订阅者一封邮件。没有订阅者时什么都不做。
func (a *Announcer) Send(p model.Product) error {
	recipients, err := Recipients(a.DB)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}
	body, err := a.render(p)
	if err != nil {
		return err
	}
	name := a.FromName
	if name == "" {
		name = "Bghitha"
	}
	subject := "Nouveau produit ✨ " + p.Title

	msgs := make([]*mail.Message, 0, len(recipients))
	for _, to := range recipients {
		m := mail.NewMessage()
		m.SetAddressHeader("From", a.From, name)
		m.SetHeader("To", to)
		m.SetHeader("Subject", subject)
		m.SetBody("text/html", body)
		msgs = append(msgs, m)
	}
	if err := a.Sender.DialAndSend(msgs...); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	a.logger().Info("announcement sent", "product_id", p.ID, "recipients", len(recipients))
	return nil
}

func (a *Announcer) render(p model.Product) (string, error) {
	base := strings.TrimRight(a.SiteURL, "/")
	v := productView{
		Title:      p.Title,
		Price:      cart.FormatCents(p.PriceCents),
		Effective:  cart.FormatCents(cart.EffectivePrice(p)),
		Discounted: cart.EffectivePrice(p) != p.PriceCents,
		URL:        fmt.Sprintf("%s/api/products/%d", base, p.ID),
	}
	if img := p.FirstImage(); img != "" {
		v.Cover = base + "/static/" + strings.TrimLeft(img, "/")
	}
	var buf bytes.Buffer
	if err := productTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render announcement: %w", err)
	}
	return buf.String(), nil
}
