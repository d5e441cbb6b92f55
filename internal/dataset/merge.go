package dataset

import "fmt"

// Merge concatenates the given record lists, keeping the first occurrence
// of each instruction.
func Merge(lists ...[]Record) []Record {
	seen := make(Set)
	var out []Record
	for _, list := range lists {
		for _, r := range list {
			if seen.Contains(r.Instruction) {
				continue
			}
			seen.Add(r.Instruction)
			out = append(out, r)
		}
	}
	return out
}

// MergeFiles folds the remainder file into the output file and returns the
// number of records written.
func MergeFiles(outputPath, remainderPath string) (int, error) {
	output, err := ReadFile(outputPath)
	if err != nil {
		return 0, err
	}
	remainder, err := ReadFile(remainderPath)
	if err != nil {
		return 0, err
	}
	merged := Merge(output, remainder)
	if err := WriteFile(outputPath, merged); err != nil {
		return 0, fmt.Errorf("failed to write merged dataset: %w", err)
	}
	return len(merged), nil
}
