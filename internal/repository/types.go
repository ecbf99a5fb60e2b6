package repository

import "time"

// DonationListFilter 查询捐赠列表的过滤条件
type DonationListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	DonationNo  string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// UserListFilter 查询注册用户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
