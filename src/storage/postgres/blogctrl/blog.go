package blogctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ContentType discriminates blog content blocks.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
)

type Blog struct {
	ID        int64         `gorm:"primaryKey" json:"id"`
	UserID    int64         `gorm:"not null;index" json:"user_id"`
	Title     string        `gorm:"not null" json:"title"`
	IsPrivate bool          `gorm:"not null;default:false" json:"is_private"`
	Contents  []BlogContent `gorm:"foreignKey:BlogID" json:"contents"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BlogContent is one display block of a generated blog. Content holds
// literal text for TEXT blocks and an image URL for IMAGE blocks.
// Sequence starts at 1 and defines display order.
type BlogContent struct {
	ID          int64       `gorm:"primaryKey" json:"id"`
	BlogID      int64       `gorm:"not null;index" json:"blog_id"`
	Sequence    int         `gorm:"not null" json:"sequence"`
	ContentType ContentType `gorm:"not null" json:"content_type"`
	Content     string      `gorm:"not null;type:text" json:"content"`
}

type BlogService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewBlogService(db *gorm.DB) (*BlogService, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &BlogService{
		db:        db,
		snowflake: node,
	}, nil
}

// CreateWithContents persists a blog and its content blocks in one
// transaction and returns the stored blog.
func (s *BlogService) CreateWithContents(ctx context.Context, userID int64, title string, contents []BlogContent) (*Blog, error) {
	blog := &Blog{
		ID:     s.snowflake.Generate().Int64(),
		UserID: userID,
		Title:  title,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Contents").Create(blog).Error; err != nil {
			return err
		}

		for i := range contents {
			contents[i].ID = s.snowflake.Generate().Int64()
			contents[i].BlogID = blog.ID
		}
		if len(contents) > 0 {
			if err := tx.Create(&contents).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blog: %v", err)
	}

	blog.Contents = contents
	return blog, nil
}

func (s *BlogService) GetByID(ctx context.Context, id int64) (*Blog, error) {
	var blog Blog
	result := s.db.WithContext(ctx).
		Preload("Contents", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&blog, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blog: %v", result.Error)
	}
	return &blog, nil
}
