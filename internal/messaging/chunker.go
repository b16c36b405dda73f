// Package messaging implements the Messaging Layer (spec.md §4.3, §4.4):
// the Chunker, which decomposes a message body into UI-sized chunks, and
// the Submitter, which delivers those chunks to a pane and verifies
// submission. Grapheme-boundary handling follows the byte-offset walking
// style zjrosen-perles' vimtextarea package uses for cursor math, built
// on the same github.com/rivo/uniseg primitive.
package messaging

import (
	"strconv"
	"strings"

	"github.com/rivo/uniseg"
)

// DefaultMaxChunkSize is the spec-mandated default chunk threshold.
const DefaultMaxChunkSize = 200

// Chunk is one element of a ChunkPlan.
type Chunk struct {
	Index   int // 1-indexed
	Total   int
	Payload string // includes the "[i/N] " header when Total > 1
}

// ChunkPlan is the ordered output of ChunkMessage.
type ChunkPlan struct {
	Chunks []Chunk
}

var sentenceTerminators = []rune{'.', '!', '?'}
var otherPunctuation = []rune{',', ';', ':'}

// ChunkMessage splits body into a ChunkPlan per spec.md §4.3. It is a pure
// function of (body, maxChunkSize): identical inputs always produce an
// identical plan.
func ChunkMessage(body string, maxChunkSize int) ChunkPlan {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if graphemeLen(body) <= maxChunkSize {
		if body == "" {
			return ChunkPlan{}
		}
		return ChunkPlan{Chunks: []Chunk{{Index: 1, Total: 1, Payload: body}}}
	}

	var payloads []string
	remaining := body
	for graphemeLen(remaining) > 0 {
		if graphemeLen(remaining) <= maxChunkSize {
			payloads = append(payloads, remaining)
			break
		}
		cut := findCutPoint(remaining, maxChunkSize)
		payloads = append(payloads, remaining[:cut])
		remaining = skipLeadingSeparator(remaining[cut:])
	}

	total := len(payloads)
	chunks := make([]Chunk, total)
	for i, p := range payloads {
		header := ""
		if total > 1 {
			header = headerFor(i+1, total)
		}
		chunks[i] = Chunk{Index: i + 1, Total: total, Payload: header + p}
	}
	return ChunkPlan{Chunks: chunks}
}

func headerFor(i, n int) string {
	return "[" + strconv.Itoa(i) + "/" + strconv.Itoa(n) + "] "
}

// graphemeLen returns the grapheme cluster count of s.
func graphemeLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// findCutPoint walks body and returns the best byte offset to cut at,
// within the first maxChunkSize graphemes, using the priority order from
// spec.md §4.3: sentence terminator, other punctuation, word boundary,
// else a forced grapheme-safe cut.
func findCutPoint(body string, maxChunkSize int) int {
	var (
		lastSentence    = -1
		lastPunctuation = -1
		lastWord        = -1
		forcedOffset    = len(body) // fallback: end of string
	)

	graphemeIdx := 0
	bytePos := 0
	state := -1
	rest := body

	var prevCluster string
	for len(rest) > 0 && graphemeIdx < maxChunkSize+1 {
		cluster, next, _, newState := uniseg.StepString(rest, state)
		clusterStart := bytePos
		clusterEnd := bytePos + len(cluster)

		if graphemeIdx == maxChunkSize {
			forcedOffset = clusterStart
			break
		}

		if isWhitespaceCluster(cluster) && prevCluster != "" {
			r := firstRune(prevCluster)
			switch {
			case containsRune(sentenceTerminators, r):
				lastSentence = clusterStart
			case containsRune(otherPunctuation, r):
				lastPunctuation = clusterStart
			default:
				lastWord = clusterStart
			}
		}

		prevCluster = cluster
		bytePos = clusterEnd
		rest = next
		state = newState
		graphemeIdx++
		forcedOffset = bytePos
	}

	switch {
	case lastSentence >= 0:
		return lastSentence
	case lastPunctuation >= 0:
		return lastPunctuation
	case lastWord >= 0:
		return lastWord
	default:
		return forcedOffset
	}
}

func isWhitespaceCluster(cluster string) bool {
	for _, r := range cluster {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return cluster != ""
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func containsRune(set []rune, r rune) bool {
	for _, c := range set {
		if c == r {
			return true
		}
	}
	return false
}

// skipLeadingSeparator drops the run of leading spaces and tabs after a
// cut (newlines are kept), matching spec.md §4.3 step 4 ("skip trailing separator whitespace").
func skipLeadingSeparator(s string) string {
	return strings.TrimLeft(s, " \t")
}
