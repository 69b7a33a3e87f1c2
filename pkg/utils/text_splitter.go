package utils

import (
	"strings"
	"unicode"
)

// SplitText splits a long string into chunks of approximately 'chunkSize' characters.
// It includes an 'overlap' to preserve context at boundaries.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	totalLen := len(runes)

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		chunks = append(chunks, string(runes[i:end]))

		if end == totalLen {
			break
		}
	}

	return chunks
}

// Coarsest first: paragraph, line, sentence, word.
var splitSeparators = []string{"\n\n", "\n", ". ", " "}

// SplitRecursive cuts text on the coarsest boundary that yields pieces of at
// most chunkSize runes, then packs the pieces greedily into chunks. Each chunk
// after the first starts with up to overlap runes of whole words from the end
// of the previous one. No chunk exceeds chunkSize runes.
func SplitRecursive(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	return mergePieces(splitPieces(text, chunkSize, 0), chunkSize, overlap)
}

func splitPieces(text string, chunkSize int, level int) []string {
	if len([]rune(text)) <= chunkSize {
		return []string{text}
	}
	if level >= len(splitSeparators) {
		return SplitText(text, chunkSize, 0)
	}

	parts := strings.SplitAfter(text, splitSeparators[level])
	if len(parts) == 1 {
		return splitPieces(text, chunkSize, level+1)
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, splitPieces(p, chunkSize, level+1)...)
	}
	return out
}

func mergePieces(pieces []string, chunkSize int, overlap int) []string {
	var chunks []string
	var cur []rune

	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, p := range pieces {
		pr := []rune(p)
		if len(cur) > 0 && len(cur)+len(pr) > chunkSize {
			flush()
			keep := overlap
			if keep > chunkSize-len(pr) {
				keep = chunkSize - len(pr)
			}
			cur = overlapTail(cur, keep)
		}
		cur = append(cur, pr...)
	}
	flush()

	return chunks
}

// overlapTail returns at most n trailing runes of r, starting on a word boundary.
func overlapTail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if n > len(r) {
		n = len(r)
	}

	start := len(r) - n
	if start > 0 && !unicode.IsSpace(r[start-1]) {
		for start < len(r) && !unicode.IsSpace(r[start]) {
			start++
		}
		for start < len(r) && unicode.IsSpace(r[start]) {
			start++
		}
	}

	tail := make([]rune, len(r)-start)
	copy(tail, r[start:])
	if strings.TrimSpace(string(tail)) == "" {
		return nil
	}
	return tail
}
