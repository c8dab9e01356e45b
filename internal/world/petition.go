package world

import "github.com/google/uuid"

// PetitionStatus is the lifecycle state of a council petition.
type PetitionStatus string

const (
	PetitionOpen   PetitionStatus = "open"
	PetitionPassed PetitionStatus = "passed"
	PetitionFailed PetitionStatus = "failed"
)

// Petition is a council-hall ballot item: a resident-authored proposal
// that the rest of the town can vote on before it expires.
type Petition struct {
	ID        string
	AuthorID  string
	Title     string
	Body      string
	Status    PetitionStatus
	CreatedAt int64 // world-seconds
	ExpiresAt int64 // world-seconds
	Votes     map[string]bool // resident id -> for(true)/against(false)
}

// WritePetition files a new open petition. The id is a random uuid
// rather than anything derived from the author or filing order, so it
// stays a stable, DB-independent handle from the moment it's minted,
// before persist.PetitionRepo.Create ever runs.
func (s *State) WritePetition(authorID, title, body string, worldTime, durationSeconds int64) *Petition {
	p := &Petition{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Title:     title,
		Body:      body,
		Status:    PetitionOpen,
		CreatedAt: worldTime,
		ExpiresAt: worldTime + durationSeconds,
		Votes:     make(map[string]bool),
	}
	s.petitions = append(s.petitions, p)
	return p
}

// PetitionByID looks up a petition by id, or nil.
func (s *State) PetitionByID(id string) *Petition {
	for _, p := range s.petitions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// VotePetition records a resident's vote, replacing any prior vote by
// the same resident. Returns false if the petition isn't open.
func (s *State) VotePetition(petitionID, residentID string, forIt bool) bool {
	p := s.PetitionByID(petitionID)
	if p == nil || p.Status != PetitionOpen {
		return false
	}
	p.Votes[residentID] = forIt
	return true
}

// ListPetitions returns every petition, open or closed, in filing order.
func (s *State) ListPetitions() []*Petition {
	return append([]*Petition(nil), s.petitions...)
}

// ExpirePetitions closes every open petition whose deadline has passed,
// deciding pass/fail by the for-vote fraction against passThreshold.
// Returns the petitions that were just closed.
func (s *State) ExpirePetitions(worldTime int64, passThreshold float64) []*Petition {
	var closed []*Petition
	for _, p := range s.petitions {
		if p.Status != PetitionOpen || worldTime < p.ExpiresAt {
			continue
		}
		forVotes := 0
		for _, v := range p.Votes {
			if v {
				forVotes++
			}
		}
		if len(p.Votes) > 0 && float64(forVotes)/float64(len(p.Votes)) >= passThreshold {
			p.Status = PetitionPassed
		} else {
			p.Status = PetitionFailed
		}
		closed = append(closed, p)
	}
	return closed
}
