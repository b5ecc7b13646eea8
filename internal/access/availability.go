package access

import "github.com/rovergate/rovergate/internal/wallet"

// Availability is the public view of a rover's occupancy. LockedBy is masked
// so status pages never leak a full wallet address.
type Availability struct {
	Available bool   `json:"available"`
	LockedBy  string `json:"locked_by,omitempty"`
}

// Describe reports whether the rover can be claimed and, when it cannot, a
// masked identifier for the wallet holding it.
func (s *Service) Describe(roverHost string) Availability {
	holder, held := s.leases.HolderOf(roverHost)
	if !held {
		return Availability{Available: true}
	}
	return Availability{Available: false, LockedBy: wallet.Mask(holder)}
}
