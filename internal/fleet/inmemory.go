package fleet

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	robots map[string]Robot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{robots: make(map[string]Robot)}
}

func (s *InMemoryStore) Register(_ context.Context, input RegisterInput) (Robot, bool, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Robot{}, false, errors.New("name is required")
	}
	motorIP := strings.TrimSpace(input.MotorIP)
	if motorIP == "" {
		return Robot{}, false, errors.New("motor_ip is required")
	}
	walletAddress := strings.ToLower(strings.TrimSpace(input.WalletAddress))
	if walletAddress == "" {
		return Robot{}, false, errors.New("wallet_address is required")
	}
	motorMDNS := strings.ToLower(strings.TrimSpace(input.MotorMDNS))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.robots {
		if existing.Deleted() {
			continue
		}
		if motorMDNS != "" && existing.MotorMDNS == motorMDNS {
			return Robot{}, false, ErrHostTaken
		}
		if strings.EqualFold(existing.Name, name) {
			return Robot{}, false, ErrNameTaken
		}
	}

	now := time.Now().UTC()

	if motorMDNS != "" {
		for id, existing := range s.robots {
			if !existing.Deleted() || existing.MotorMDNS != motorMDNS {
				continue
			}
			// Same hardware returning: revive it with its original wallet.
			existing.DeletedAt = nil
			existing.Name = name
			existing.MotorIP = motorIP
			existing.CameraIP = strings.TrimSpace(input.CameraIP)
			if owner := strings.TrimSpace(input.OwnerWallet); owner != "" {
				existing.OwnerWallet = owner
			}
			existing.UpdatedAt = now
			s.robots[id] = existing
			return existing, true, nil
		}
	}

	created := Robot{
		ID:            uuid.NewString(),
		Name:          name,
		MotorIP:       motorIP,
		CameraIP:      strings.TrimSpace(input.CameraIP),
		MotorMDNS:     motorMDNS,
		CameraMDNS:    strings.ToLower(strings.TrimSpace(input.CameraMDNS)),
		WalletAddress: walletAddress,
		OwnerWallet:   strings.TrimSpace(input.OwnerWallet),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.robots[created.ID] = created
	return created, false, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	robot, ok := s.robots[strings.TrimSpace(id)]
	if !ok || robot.Deleted() {
		return Robot{}, ErrRobotNotFound
	}
	return robot, nil
}

func (s *InMemoryStore) GetByHost(_ context.Context, host string) (Robot, error) {
	needle := strings.ToLower(strings.TrimSpace(host))
	if needle == "" {
		return Robot{}, ErrRobotNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, robot := range s.robots {
		if robot.Deleted() {
			continue
		}
		if strings.ToLower(robot.Name) == needle || robot.MotorMDNS == needle || robot.MotorIP == needle {
			return robot, nil
		}
	}
	return Robot{}, ErrRobotNotFound
}

func (s *InMemoryStore) List(_ context.Context) ([]Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	robots := make([]Robot, 0, len(s.robots))
	for _, robot := range s.robots {
		if robot.Deleted() {
			continue
		}
		robots = append(robots, robot)
	}

	sort.Slice(robots, func(i, j int) bool {
		return robots[i].CreatedAt.After(robots[j].CreatedAt)
	})
	return robots, nil
}

func (s *InMemoryStore) Update(_ context.Context, id string, input UpdateInput) (Robot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	robot, ok := s.robots[strings.TrimSpace(id)]
	if !ok || robot.Deleted() {
		return Robot{}, ErrRobotNotFound
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Robot{}, errors.New("name cannot be empty")
		}
		for otherID, other := range s.robots {
			if otherID == robot.ID || other.Deleted() {
				continue
			}
			if strings.EqualFold(other.Name, name) {
				return Robot{}, ErrNameTaken
			}
		}
		robot.Name = name
	}
	if input.MotorIP != nil {
		robot.MotorIP = strings.TrimSpace(*input.MotorIP)
	}
	if input.CameraIP != nil {
		robot.CameraIP = strings.TrimSpace(*input.CameraIP)
	}
	if input.WalletAddress != nil {
		robot.WalletAddress = strings.ToLower(strings.TrimSpace(*input.WalletAddress))
	}
	if input.OwnerWallet != nil {
		robot.OwnerWallet = strings.TrimSpace(*input.OwnerWallet)
	}
	robot.UpdatedAt = time.Now().UTC()

	s.robots[robot.ID] = robot
	return robot, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	robot, ok := s.robots[strings.TrimSpace(id)]
	if !ok || robot.Deleted() {
		return ErrRobotNotFound
	}

	now := time.Now().UTC()
	robot.DeletedAt = &now
	robot.UpdatedAt = now
	s.robots[robot.ID] = robot
	return nil
}
