package device

import "context"

// Service manages the Hikvision terminal from the admin API.
type Service interface {
	Status(ctx context.Context) StatusResponse
	RegisterUser(ctx context.Context, req RegisterUserRequest) (RegisterUserResponse, error)
	SyncUsers(ctx context.Context) (SyncResult, error)
	Configure(ctx context.Context, req ConfigureRequest) (ConfigureResponse, error)
}
