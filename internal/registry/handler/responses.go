package handler

import (
	"time"

	"genmark/internal/audit"
	"genmark/internal/domain"
	"genmark/internal/registry"
)

type recordResponse struct {
	Fingerprint    string    `json:"fingerprint"`
	CreatorID      string    `json:"creator_id"`
	ContributorID  string    `json:"contributor_id"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
	OwnershipToken uint64    `json:"ownership_token"`
	MisuseCount    uint64    `json:"misuse_count"`
	Parent         string    `json:"parent,omitempty"`
}

type registerResponse struct {
	Fingerprint       string         `json:"fingerprint"`
	AlreadyRegistered bool           `json:"already_registered"`
	PhashCollision    bool           `json:"phash_collision,omitempty"`
	ParentResolved    bool           `json:"parent_resolved"`
	Record            recordResponse `json:"record"`
	Chain             []chainStep    `json:"chain,omitempty"`
	TxID              string         `json:"tx_id,omitempty"`
	ConfirmedRound    uint64         `json:"confirmed_round,omitempty"`
	Similar           []similarMatch `json:"similar,omitempty"`
}

type chainStep struct {
	Fingerprint string `json:"fingerprint"`
	Contributor string `json:"contributor"`
	IsOriginal  bool   `json:"is_original"`
	Parent      string `json:"parent,omitempty"`
}

type verifyResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Registered  bool            `json:"registered"`
	Record      *recordResponse `json:"record,omitempty"`
	Chain       []chainStep     `json:"chain,omitempty"`
	FlagCount   uint64          `json:"flag_count"`
	Similar     []similarMatch  `json:"similar,omitempty"`
}

type flagResponse struct {
	Fingerprint    string `json:"fingerprint"`
	Index          uint64 `json:"index"`
	Description    string `json:"description"`
	MisuseCount    uint64 `json:"misuse_count"`
	TxID           string `json:"tx_id,omitempty"`
	ConfirmedRound uint64 `json:"confirmed_round,omitempty"`
}

type flagDetailResponse struct {
	Fingerprint string `json:"fingerprint"`
	Index       uint64 `json:"index"`
	Description string `json:"description"`
}

type similarMatch struct {
	Fingerprint string `json:"fingerprint"`
	Distance    int    `json:"distance"`
	Match       string `json:"match"`
}

type similarResponse struct {
	Fingerprint string         `json:"fingerprint"`
	Matches     []similarMatch `json:"matches"`
}

type auditResponse struct {
	Fingerprint string        `json:"fingerprint"`
	Events      []audit.Event `json:"events"`
}

func toRecordResponse(rec domain.ContentRecord) recordResponse {
	out := recordResponse{
		Fingerprint:    rec.Fingerprint.String(),
		CreatorID:      rec.CreatorID,
		ContributorID:  rec.ContributorID,
		Platform:       rec.Platform,
		CreatedAt:      rec.CreatedAt,
		OwnershipToken: rec.OwnershipToken,
		MisuseCount:    rec.MisuseCount,
	}
	if rec.Parent != nil {
		out.Parent = rec.Parent.String()
	}
	return out
}

func toRegisterResponse(res registry.RegisterResult) registerResponse {
	return registerResponse{
		Fingerprint:       res.Record.Fingerprint.String(),
		AlreadyRegistered: res.AlreadyRegistered,
		PhashCollision:    res.PhashCollision,
		ParentResolved:    res.ParentResolved,
		Record:            toRecordResponse(res.Record),
		Chain:             toChainSteps(res.Chain),
		TxID:              res.Receipt.TxID,
		ConfirmedRound:    res.Receipt.ConfirmedRound,
		Similar:           toSimilarMatches(res.Similar),
	}
}

func toChainSteps(chain []domain.ChainStep) []chainStep {
	var out []chainStep
	for _, step := range chain {
		cs := chainStep{
			Fingerprint: step.Record.Fingerprint.String(),
			Contributor: step.Contributor,
			IsOriginal:  step.IsOriginal,
		}
		if step.Record.Parent != nil {
			cs.Parent = step.Record.Parent.String()
		}
		out = append(out, cs)
	}
	return out
}

func toVerifyResponse(fp domain.Fingerprint, res registry.VerifyResult) verifyResponse {
	out := verifyResponse{
		Fingerprint: fp.String(),
		Registered:  res.Registered,
		FlagCount:   res.FlagCount,
		Similar:     toSimilarMatches(res.Similar),
	}
	if !res.Registered {
		return out
	}

	rec := toRecordResponse(res.Record)
	out.Record = &rec
	out.Chain = toChainSteps(res.Chain)
	return out
}

func toFlagResponse(res registry.FlagMisuseResult) flagResponse {
	return flagResponse{
		Fingerprint:    res.Flag.Fingerprint.String(),
		Index:          res.Flag.Index,
		Description:    res.Flag.Description,
		MisuseCount:    res.Record.MisuseCount,
		TxID:           res.Receipt.TxID,
		ConfirmedRound: res.Receipt.ConfirmedRound,
	}
}

func toSimilarMatches(matches []registry.SimilarMatch) []similarMatch {
	out := make([]similarMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, similarMatch{
			Fingerprint: m.Fingerprint.String(),
			Distance:    m.Distance,
			Match:       string(m.Match),
		})
	}
	return out
}

func toSimilarResponse(fp domain.Fingerprint, matches []registry.SimilarMatch) similarResponse {
	return similarResponse{
		Fingerprint: fp.String(),
		Matches:     toSimilarMatches(matches),
	}
}
