package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the catalog in Postgres so registered rovers survive
// restarts. Control sessions stay in memory regardless of the catalog backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const robotColumns = `id, name, motor_ip, camera_ip, motor_mdns, camera_mdns, wallet_address, owner_wallet, created_at, updated_at, deleted_at`

func (s *PostgresStore) Register(ctx context.Context, input RegisterInput) (Robot, bool, error) {
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
	owner := strings.TrimSpace(input.OwnerWallet)
	now := time.Now().UTC()

	if motorMDNS != "" {
		var taken bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM robots WHERE motor_mdns = $1 AND deleted_at IS NULL)`,
			motorMDNS,
		).Scan(&taken)
		if err != nil {
			return Robot{}, false, fmt.Errorf("check host: %w", err)
		}
		if taken {
			return Robot{}, false, ErrHostTaken
		}
	}

	var nameTaken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM robots WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL)`,
		name,
	).Scan(&nameTaken)
	if err != nil {
		return Robot{}, false, fmt.Errorf("check name: %w", err)
	}
	if nameTaken {
		return Robot{}, false, ErrNameTaken
	}

	if motorMDNS != "" {
		// Same hardware returning: revive it with its original wallet.
		row := s.pool.QueryRow(ctx, `
UPDATE robots
SET deleted_at = NULL,
    name = $2,
    motor_ip = $3,
    camera_ip = $4,
    owner_wallet = CASE WHEN $5 <> '' THEN $5 ELSE owner_wallet END,
    updated_at = $6
WHERE id = (
	SELECT id FROM robots
	WHERE motor_mdns = $1 AND deleted_at IS NOT NULL
	ORDER BY updated_at DESC
	LIMIT 1
)
RETURNING `+robotColumns,
			motorMDNS, name, motorIP, strings.TrimSpace(input.CameraIP), owner, now)
		revived, err := scanRobot(row)
		if err == nil {
			return revived, true, nil
		}
		if !errors.Is(err, ErrRobotNotFound) {
			return Robot{}, false, fmt.Errorf("reactivate robot: %w", err)
		}
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO robots (`+robotColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
RETURNING `+robotColumns,
		uuid.NewString(), name, motorIP, strings.TrimSpace(input.CameraIP),
		motorMDNS, strings.ToLower(strings.TrimSpace(input.CameraMDNS)),
		walletAddress, owner, now, now)
	created, err := scanRobot(row)
	if err != nil {
		return Robot{}, false, fmt.Errorf("insert robot: %w", err)
	}
	return created, false, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Robot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+robotColumns+` FROM robots WHERE id = $1 AND deleted_at IS NULL`,
		strings.TrimSpace(id))
	return scanRobot(row)
}

func (s *PostgresStore) GetByHost(ctx context.Context, host string) (Robot, error) {
	needle := strings.ToLower(strings.TrimSpace(host))
	if needle == "" {
		return Robot{}, ErrRobotNotFound
	}
	row := s.pool.QueryRow(ctx, `
SELECT `+robotColumns+` FROM robots
WHERE deleted_at IS NULL AND (LOWER(name) = $1 OR motor_mdns = $1 OR motor_ip = $1)
LIMIT 1`, needle)
	return scanRobot(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]Robot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+robotColumns+` FROM robots WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	defer rows.Close()

	robots := make([]Robot, 0)
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		robots = append(robots, robot)
	}
	return robots, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id string, input UpdateInput) (Robot, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Robot{}, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Robot{}, errors.New("name cannot be empty")
		}
		var taken bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM robots WHERE LOWER(name) = LOWER($1) AND id <> $2 AND deleted_at IS NULL)`,
			name, current.ID,
		).Scan(&taken)
		if err != nil {
			return Robot{}, fmt.Errorf("check name: %w", err)
		}
		if taken {
			return Robot{}, ErrNameTaken
		}
		current.Name = name
	}
	if input.MotorIP != nil {
		current.MotorIP = strings.TrimSpace(*input.MotorIP)
	}
	if input.CameraIP != nil {
		current.CameraIP = strings.TrimSpace(*input.CameraIP)
	}
	if input.WalletAddress != nil {
		current.WalletAddress = strings.ToLower(strings.TrimSpace(*input.WalletAddress))
	}
	if input.OwnerWallet != nil {
		current.OwnerWallet = strings.TrimSpace(*input.OwnerWallet)
	}

	row := s.pool.QueryRow(ctx, `
UPDATE robots
SET name = $2, motor_ip = $3, camera_ip = $4, wallet_address = $5, owner_wallet = $6, updated_at = $7
WHERE id = $1 AND deleted_at IS NULL
RETURNING `+robotColumns,
		current.ID, current.Name, current.MotorIP, current.CameraIP,
		current.WalletAddress, current.OwnerWallet, time.Now().UTC())
	return scanRobot(row)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.pool.Exec(ctx,
		`UPDATE robots SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		strings.TrimSpace(id), now)
	if err != nil {
		return fmt.Errorf("delete robot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRobotNotFound
	}
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS robots (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	motor_ip TEXT NOT NULL,
	camera_ip TEXT NOT NULL DEFAULT '',
	motor_mdns TEXT NOT NULL DEFAULT '',
	camera_mdns TEXT NOT NULL DEFAULT '',
	wallet_address TEXT NOT NULL,
	owner_wallet TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
`,
		`ALTER TABLE robots ADD COLUMN IF NOT EXISTS owner_wallet TEXT NOT NULL DEFAULT '';`,
		`ALTER TABLE robots ADD COLUMN IF NOT EXISTS deleted_at TIMESTAMPTZ;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_robots_active_name ON robots (LOWER(name)) WHERE deleted_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_robots_motor_mdns ON robots (motor_mdns);`,
		`CREATE INDEX IF NOT EXISTS idx_robots_created_at ON robots (created_at DESC);`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize robots schema: %w", err)
		}
	}
	return nil
}

type robotRowScanner interface {
	Scan(dest ...any) error
}

func scanRobot(row robotRowScanner) (Robot, error) {
	var out Robot
	var deletedAt *time.Time
	err := row.Scan(
		&out.ID, &out.Name, &out.MotorIP, &out.CameraIP,
		&out.MotorMDNS, &out.CameraMDNS, &out.WalletAddress, &out.OwnerWallet,
		&out.CreatedAt, &out.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Robot{}, ErrRobotNotFound
		}
		return Robot{}, err
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	if deletedAt != nil {
		utc := deletedAt.UTC()
		out.DeletedAt = &utc
	}
	return out, nil
}
