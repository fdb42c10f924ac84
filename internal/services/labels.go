package services

import "math/rand"

const labelAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DrawLabels returns the deterministic draw-label sequence for count
// participants: A..Z, then AA..AZ, BA..BZ, CA..CZ. Four tiers cover 104
// labels, enough for the 100-participant cap.
func DrawLabels(count int) []string {
	labels := make([]string, 0, count)
	for i := 0; i < count; i++ {
		switch {
		case i < 26:
			labels = append(labels, string(labelAlphabet[i]))
		case i < 52:
			labels = append(labels, "A"+string(labelAlphabet[i-26]))
		case i < 78:
			labels = append(labels, "B"+string(labelAlphabet[i-52]))
		default:
			labels = append(labels, "C"+string(labelAlphabet[i-78]))
		}
	}
	return labels
}

// shuffleLabels returns a uniformly shuffled copy (Fisher-Yates).
func shuffleLabels(labels []string) []string {
	shuffled := make([]string, len(labels))
	copy(shuffled, labels)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
