package handler

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/model"
)

// parseChain decodes the cross-reference chain from repeated pN/aN query
// parameter pairs: ?p1=..&a1=..&p2=..&a2=..
//
// Complete pairs are constraints. A trailing pN with no matching aN names
// the candidate poll whose per-base-answer preview is being requested (the
// viewer picked a poll from search but no answer on it yet). Numbering must
// be contiguous from 1 — a gap means the caller built the URL wrong, and
// silently skipping links would aggregate over the wrong population.
func parseChain(q url.Values) (chain []model.ChainLink, candidateID string, err error) {
	last := 0
	for i := 1; ; i++ {
		pollID := q.Get("p" + strconv.Itoa(i))
		if pollID == "" {
			if q.Get("a"+strconv.Itoa(i)) != "" {
				return nil, "", apperror.ValidationFailed("chain",
					fmt.Sprintf("a%d given without p%d", i, i))
			}
			last = i - 1
			break
		}

		answerID := q.Get("a" + strconv.Itoa(i))
		if answerID == "" {
			// Candidate poll: must be the last entry.
			if q.Get("p"+strconv.Itoa(i+1)) != "" {
				return nil, "", apperror.ValidationFailed("chain",
					fmt.Sprintf("p%d has no answer but the chain continues", i))
			}
			candidateID = pollID
			last = i
			break
		}

		chain = append(chain, model.ChainLink{PollID: pollID, AnswerID: answerID})
	}

	// Anything numbered past the contiguous run means a gap in the URL.
	for key := range q {
		if len(key) < 2 || (key[0] != 'p' && key[0] != 'a') {
			continue
		}
		n, err := strconv.Atoi(key[1:])
		if err != nil {
			continue
		}
		if n > last && q.Get(key) != "" {
			return nil, "", apperror.ValidationFailed("chain",
				fmt.Sprintf("%s leaves a gap in the chain numbering", key))
		}
	}

	return chain, candidateID, nil
}

// chainExclusions returns the poll IDs a cross-reference search must skip:
// the base poll plus every poll already in the chain.
func chainExclusions(basePollID string, chain []model.ChainLink, candidateID string) []string {
	exclude := []string{basePollID}
	for _, link := range chain {
		exclude = append(exclude, link.PollID)
	}
	if candidateID != "" {
		exclude = append(exclude, candidateID)
	}
	return exclude
}
