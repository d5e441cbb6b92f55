package dataset

import "strings"

// Rejection reasons reported by Filter.
const (
	ReasonEmptyInstruction = "empty_instruction"
	ReasonNoValidAPI       = "no_valid_api"
	ReasonDuplicate        = "duplicate"
)

// Seen reports whether an instruction is already part of the dataset.
type Seen interface {
	Contains(instruction string) bool
}

// Set is an in-memory instruction set.
type Set map[string]struct{}

// NewSet indexes the instructions of records.
func NewSet(records ...[]Record) Set {
	s := make(Set)
	for _, batch := range records {
		for _, r := range batch {
			s.Add(r.Instruction)
		}
	}
	return s
}

// Contains implements Seen.
func (s Set) Contains(instruction string) bool {
	_, ok := s[instruction]
	return ok
}

// Add inserts an instruction.
func (s Set) Add(instruction string) {
	s[instruction] = struct{}{}
}

// Rejection records why a record was dropped.
type Rejection struct {
	Record Record
	Reason string
}

// Filter returns the records of batch that have a non-empty instruction, at
// least one API entry with both a name and arguments, and an instruction not
// present in any of seen nor earlier in the batch. Accepted records keep
// their relative order and are reduced to their valid API entries.
func Filter(batch []Record, seen ...Seen) ([]Record, []Rejection) {
	var (
		accepted []Record
		rejected []Rejection
		local    = make(Set)
	)
	for _, r := range batch {
		r.Instruction = strings.TrimSpace(r.Instruction)
		if r.Instruction == "" {
			rejected = append(rejected, Rejection{Record: r, Reason: ReasonEmptyInstruction})
			continue
		}

		var apis []API
		for _, api := range r.RelevantAPIs {
			if api.Valid() {
				apis = append(apis, api)
			}
		}
		if len(apis) == 0 {
			rejected = append(rejected, Rejection{Record: r, Reason: ReasonNoValidAPI})
			continue
		}

		if local.Contains(r.Instruction) || seenAny(seen, r.Instruction) {
			rejected = append(rejected, Rejection{Record: r, Reason: ReasonDuplicate})
			continue
		}

		local.Add(r.Instruction)
		r.RelevantAPIs = apis
		accepted = append(accepted, r)
	}
	return accepted, rejected
}

func seenAny(seen []Seen, instruction string) bool {
	for _, s := range seen {
		if s != nil && s.Contains(instruction) {
			return true
		}
	}
	return false
}
