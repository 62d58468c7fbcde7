package services

import (
	"context"
	"fmt"
	"io"
	"sort"

	"redminetogithub/models"
	"redminetogithub/utils"
)

// IssueLister は移行先のイシュー一覧を取得します
type IssueLister interface {
	ListIssues(ctx context.Context) ([]models.TargetIssue, error)
}

// GenerateRedirects は移行済みイシューのnginxリライトルールをRedmineのID順に書き出します。
// 移行元IDはタイトルの RM-<id> から取得します
func GenerateRedirects(ctx context.Context, lister IssueLister, w io.Writer) (int, error) {
	issues, err := lister.ListIssues(ctx)
	if err != nil {
		return 0, err
	}

	type redirect struct {
		sourceID int
		url      string
	}
	var redirects []redirect
	seen := make(map[int]bool)

	for _, issue := range issues {
		id, ok := ParseSourceToken(issue.Title)
		if !ok {
			continue
		}
		if seen[id] {
			utils.LogWarn("RM-%d に対応するイシューが複数あります。#%d は無視します", id, issue.Number)
			continue
		}
		seen[id] = true
		redirects = append(redirects, redirect{sourceID: id, url: issue.HTMLURL})
	}

	sort.Slice(redirects, func(i, j int) bool {
		return redirects[i].sourceID < redirects[j].sourceID
	})

	for _, r := range redirects {
		if _, err := fmt.Fprintf(w, "rewrite ^/issues/%d$ %s permanent;\n", r.sourceID, r.url); err != nil {
			return 0, err
		}
	}
	return len(redirects), nil
}
