package client

import "context"

type Repository interface {
	Create(ctx context.Context, nc NewClient) (*Client, error)
	FindByPhone(ctx context.Context, phone string) (*Client, error)
	FindByID(ctx context.Context, id int64) (*Client, error)
	FindByReferralCode(ctx context.Context, code string) (*Client, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
}
