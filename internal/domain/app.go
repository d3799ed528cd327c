package domain

import "time"

// Environment 应用运行环境，决定 API Key 的前缀
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

// Valid 判断环境取值是否合法
func (e Environment) Valid() bool {
	return e == EnvironmentDevelopment || e == EnvironmentProduction
}

// App 开发者应用，是 API Key、Webhook 与 Post 的租户
type App struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string      `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Name        string      `json:"name" gorm:"type:varchar(100);not null"`
	Description string      `json:"description,omitempty" gorm:"type:varchar(500)"`
	Environment Environment `json:"environment" gorm:"type:varchar(20);not null;default:'development'"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
