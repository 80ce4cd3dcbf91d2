// Package formation partitions a participant set into near-equal teams.
package formation

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

var (
	ErrNoParticipants      = errors.New("formation: no participants")
	ErrNoProblemStatements = errors.New("formation: no problem statements")
	ErrInvalidTeamSize     = errors.New("formation: max team size must be at least 1")
)

// Group is one team to be created.
type Group struct {
	Name             string
	ProblemStatement string
	Members          []uuid.UUID
}

// Sizes returns the team sizes for n participants with at most maxTeamSize
// per team: ceil(n/maxTeamSize) teams whose sizes differ by at most one,
// larger teams first.
func Sizes(n, maxTeamSize int) []int {
	if n <= 0 || maxTeamSize < 1 {
		return nil
	}
	k := (n + maxTeamSize - 1) / maxTeamSize
	base, remainder := n/k, n%k

	sizes := make([]int, k)
	for i := range sizes {
		sizes[i] = base
		if i < remainder {
			sizes[i]++
		}
	}
	return sizes
}

// Partition shuffles participants with rng, slices them into groups sized
// by Sizes and draws a problem statement for each group with replacement.
// The input slice is not modified.
func Partition(participants []uuid.UUID, problemStatements []string, maxTeamSize int, rng *rand.Rand) ([]Group, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	if len(problemStatements) == 0 {
		return nil, ErrNoProblemStatements
	}
	if maxTeamSize < 1 {
		return nil, ErrInvalidTeamSize
	}

	shuffled := make([]uuid.UUID, len(participants))
	copy(shuffled, participants)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	sizes := Sizes(len(shuffled), maxTeamSize)
	groups := make([]Group, 0, len(sizes))
	offset := 0
	for _, size := range sizes {
		groups = append(groups, Group{
			Name:             teamName(rng),
			ProblemStatement: problemStatements[rng.IntN(len(problemStatements))],
			Members:          shuffled[offset : offset+size : offset+size],
		})
		offset += size
	}
	return groups, nil
}

func teamName(rng *rand.Rand) string {
	return fmt.Sprintf("Team %06x", rng.Uint32()&0xffffff)
}

// NewRand returns a PCG-backed source. A zero seed picks a random one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
