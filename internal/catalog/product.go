// Package catalog manages products and their reviews.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storefront/internal/code"
	"storefront/internal/model"
	"storefront/internal/store"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrTitleRequired  = errors.New("title is required")
	ErrCodeExhausted  = errors.New("could not allocate a unique ticket code")
	ErrReviewNotFound = errors.New("review not found")
)

// maxInsertAttempts 编号或 slug 冲突时的插入重试次数。
const maxInsertAttempts = 5

// homeLimit 首页展示的商品数。
const homeLimit = 8

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSep   = regexp.MustCompile(`[\s-]+`)
)

// Slugify "Lampe de Bureau!" -> "lampe-de-bureau"。
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStrip.ReplaceAllString(s, "")
	return slugSep.ReplaceAllString(s, "-")
}

// ProductInput 后台表单提交的商品字段。
type ProductInput struct {
	Title           string
	DescriptionHTML string
	PriceCents      int64
	DiscountCents   *int64
	Category        string
	Tags            string
	SKU             string
	Stock           int64
	Published       bool
	Images          []string
}

func (in ProductInput) normalize() (ProductInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, ErrTitleRequired
	}
	in.DescriptionHTML = strings.TrimSpace(in.DescriptionHTML)
	in.Category = strings.TrimSpace(in.Category)
	in.Tags = strings.TrimSpace(in.Tags)
	in.SKU = strings.TrimSpace(in.SKU)
	in.PriceCents = max(0, in.PriceCents)
	in.Stock = max(0, in.Stock)
	if in.Images == nil {
		in.Images = []string{}
	}
	return in, nil
}

// Catalog 商品写操作。Codes 和 Now 可在测试中替换。
type Catalog struct {
	Codes code.Generator
	Now   func() time.Time
}

func New() *Catalog {
	return &Catalog{Codes: code.Default, Now: time.Now}
}

// Get 按 ID 读取商品（含草稿）。
func Get(db *gorm.DB, id int64) (*model.Product, error) {
	var p model.Product
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetPublished 前台只能看到已发布的商品。
func GetPublished(db *gorm.DB, id int64) (*model.Product, error) {
	var p model.Product
	if err := db.Where("id = ? AND published = ?", id, true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// uniqueSlug 在 base 后追加 -2、-3… 直到不与其他商品冲突；excludeID 为正时忽略自身。
func uniqueSlug(db *gorm.DB, base string, excludeID int64) (string, error) {
	candidate := base
	for suffix := 2; ; suffix++ {
		q := db.Model(&model.Product{}).Where("slug = ?", candidate)
		if excludeID > 0 {
			q = q.Where("id <> ?", excludeID)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(suffix)
	}
}

// insert 写入新商品；票据编号或 slug 冲突时换一个重试。
func (c *Catalog) insert(db *gorm.DB, p *model.Product, baseSlug string) error {
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		slug, err := uniqueSlug(db, baseSlug, 0)
		if err != nil {
			return err
		}
		ticket, err := c.Codes.New()
		if err != nil {
			return err
		}
		p.ID = 0
		p.Slug = slug
		p.TicketID = &ticket
		err = db.Create(p).Error
		if err == nil {
			return nil
		}
		if !store.IsUniqueViolation(err) {
			return fmt.Errorf("insert product: %w", err)
		}
	}
	p.TicketID = nil
	return ErrCodeExhausted
}

// Create 新建商品。
func (c *Catalog) Create(db *gorm.DB, in ProductInput) (*model.Product, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now := model.NewTimestamp(c.Now())
	base := Slugify(in.Title)
	if base == "" {
		base = Slugify("produit-" + now.String())
	}
	p := &model.Product{
		CreatedAt:       now,
		UpdatedAt:       now,
		Title:           in.Title,
		DescriptionHTML: in.DescriptionHTML,
		PriceCents:      in.PriceCents,
		DiscountCents:   in.DiscountCents,
		Images:          in.Images,
		Category:        in.Category,
		Tags:            in.Tags,
		Stock:           in.Stock,
		SKU:             in.SKU,
		Published:       in.Published,
	}
	if err := c.insert(db, p, base); err != nil {
		return nil, err
	}
	return p, nil
}

// Update 覆盖商品字段，slug 随标题重新生成（排除自身）。票据编号和创建时间不变。
func (c *Catalog) Update(db *gorm.DB, id int64, in ProductInput) (*model.Product, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	p, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	base := Slugify(in.Title)
	if base == "" {
		base = "produit-" + strconv.FormatInt(id, 10)
	}
	slug, err := uniqueSlug(db, base, id)
	if err != nil {
		return nil, err
	}
	p.Title = in.Title
	p.Slug = slug
	p.DescriptionHTML = in.DescriptionHTML
	p.PriceCents = in.PriceCents
	p.DiscountCents = in.DiscountCents
	p.Images = in.Images
	p.Category = in.Category
	p.Tags = in.Tags
	p.Stock = in.Stock
	p.SKU = in.SKU
	p.Published = in.Published
	p.UpdatedAt = model.NewTimestamp(c.Now())
	if err := db.Save(p).Error; err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

// Delete 删除商品，评价随外键级联删除。返回被删商品的图片路径供调用方清理文件。
func Delete(db *gorm.DB, id int64) ([]string, error) {
	p, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Delete(&model.Product{}, id).Error; err != nil {
		return nil, err
	}
	return p.Images, nil
}

// SetPublished 发布或转为草稿；状态未变化时不写库。
func (c *Catalog) SetPublished(db *gorm.DB, id int64, published bool) (*model.Product, error) {
	p, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if p.Published == published {
		return p, nil
	}
	p.Published = published
	p.UpdatedAt = model.NewTimestamp(c.Now())
	if err := db.Model(&model.Product{}).Where("id = ?", id).Updates(map[string]any{
		"published":  published,
		"updated_at": p.UpdatedAt,
	}).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// Duplicate 复制商品：标题取第一个未被占用的 "标题 N"，sku 追加 -COPY，
// 新的 slug 和票据编号，发布状态保持不变。
func (c *Catalog) Duplicate(db *gorm.DB, id int64) (*model.Product, error) {
	src, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	base := src.Title
	if base == "" {
		base = "Product"
	}
	var title string
	for n := 1; ; n++ {
		title = fmt.Sprintf("%s %d", base, n)
		var count int64
		if err := db.Model(&model.Product{}).Where("title = ?", title).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			break
		}
	}
	slugBase := Slugify(title)
	if slugBase == "" {
		slugBase = "produit-" + strconv.FormatInt(id, 10)
	}
	sku := ""
	if src.SKU != "" {
		sku = src.SKU + "-COPY"
	}
	var discount *int64
	if src.DiscountCents != nil && *src.DiscountCents != 0 {
		d := *src.DiscountCents
		discount = &d
	}
	now := model.NewTimestamp(c.Now())
	p := &model.Product{
		CreatedAt:       now,
		UpdatedAt:       now,
		Title:           title,
		DescriptionHTML: src.DescriptionHTML,
		PriceCents:      src.PriceCents,
		DiscountCents:   discount,
		Images:          append([]string{}, src.Images...),
		Category:        src.Category,
		Tags:            src.Tags,
		Stock:           src.Stock,
		SKU:             sku,
		Published:       src.Published,
	}
	if err := c.insert(db, p, slugBase); err != nil {
		return nil, err
	}
	return p, nil
}

// List 后台商品列表，按创建时间倒序。
func List(db *gorm.DB) ([]model.Product, error) {
	var out []model.Product
	if err := db.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Search 前台商品列表：q 模糊匹配标题、标签和分类，category 精确过滤。
func Search(db *gorm.DB, q, category string) ([]model.Product, error) {
	tx := db.Where("published = ?", true)
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + q + "%"
		tx = tx.Where("(title LIKE ? OR tags LIKE ? OR category LIKE ?)", like, like, like)
	}
	if category = strings.TrimSpace(category); category != "" {
		tx = tx.Where("category = ?", category)
	}
	var out []model.Product
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Newest 最新发布的 n 个商品。
func Newest(db *gorm.DB, n int) ([]model.Product, error) {
	var out []model.Product
	err := db.Where("published = ?", true).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

// Home 首页商品：畅销商品（若已发布）排第一，其余为最新发布的商品，共 8 个。
// topSellerID 为 0 表示没有畅销数据。
func Home(db *gorm.DB, topSellerID int64) ([]model.Product, error) {
	if topSellerID > 0 {
		top, err := GetPublished(db, topSellerID)
		if err == nil {
			var rest []model.Product
			if err := db.Where("published = ? AND id <> ?", true, top.ID).
				Order("created_at DESC").Order("id DESC").
				Limit(homeLimit - 1).
				Find(&rest).Error; err != nil {
				return nil, err
			}
			return append([]model.Product{*top}, rest...), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return Newest(db, homeLimit)
}
