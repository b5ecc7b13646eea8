// Package fleet is the rover catalog: which rovers exist, how to reach them,
// and which wallet gets paid for their time. Rovers are soft-deleted so a
// machine that comes back keeps its payment history and wallet.
package fleet

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRobotNotFound = errors.New("robot not found")
	ErrNameTaken     = errors.New("robot name already registered")
	ErrHostTaken     = errors.New("robot host already registered")
)

// Robot is a registered rover. WalletAddress receives session payments;
// OwnerWallet identifies the operator and may be an address or an ENS name.
type Robot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	MotorIP       string     `json:"motor_ip"`
	CameraIP      string     `json:"camera_ip,omitempty"`
	MotorMDNS     string     `json:"motor_mdns,omitempty"`
	CameraMDNS    string     `json:"camera_mdns,omitempty"`
	WalletAddress string     `json:"wallet_address"`
	OwnerWallet   string     `json:"owner_wallet,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

func (r Robot) Deleted() bool {
	return r.DeletedAt != nil
}

// Host is the identifier sessions claim the rover by: the mDNS name when the
// hardware reported one, otherwise the motor IP.
func (r Robot) Host() string {
	if r.MotorMDNS != "" {
		return r.MotorMDNS
	}
	return r.MotorIP
}

type RegisterInput struct {
	Name          string
	MotorIP       string
	CameraIP      string
	MotorMDNS     string
	CameraMDNS    string
	WalletAddress string
	OwnerWallet   string
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name          *string
	MotorIP       *string
	CameraIP      *string
	WalletAddress *string
	OwnerWallet   *string
}

// Store persists the rover catalog.
//
// Register applies the re-registration rules: a soft-deleted rover with the
// same motor mDNS is reactivated in place and keeps its original payment
// wallet (the returned bool reports reactivation); registering over an active
// rover with the same mDNS is ErrHostTaken, and over an active rover with the
// same name is ErrNameTaken.
type Store interface {
	Register(ctx context.Context, input RegisterInput) (Robot, bool, error)
	Get(ctx context.Context, id string) (Robot, error)
	GetByHost(ctx context.Context, host string) (Robot, error)
	List(ctx context.Context) ([]Robot, error)
	Update(ctx context.Context, id string, input UpdateInput) (Robot, error)
	Delete(ctx context.Context, id string) error
}
