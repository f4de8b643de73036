package services

import (
	"context"

	"github.com/Blackie360/Persona-Studio/utils"
)

type blockChecker interface {
	HasActiveMatch(ctx context.Context, userID, email, sessionID string) (bool, error)
}

// BlocklistService answers whether a requester is on the deny list.
type BlocklistService struct {
	blocks blockChecker
	logger *utils.Logger
}

func CreateBlocklistService(blocks blockChecker) *BlocklistService {
	return &BlocklistService{
		blocks: blocks,
		logger: utils.NewLogger("blocklist"),
	}
}

// IsBlocked returns true when any active block entry matches any of the
// requester's known identifiers. On storage failure it fails OPEN: blocking
// is a soft moderation feature, and a transient database error must not
// lock every user out. Do not change this to fail closed.
func (s *BlocklistService) IsBlocked(ctx context.Context, identity Identity) bool {
	blocked, err := s.blocks.HasActiveMatch(ctx, identity.UserID, identity.Email, identity.SessionID)
	if err != nil {
		s.logger.Error(ctx, "block list lookup failed, allowing request", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return blocked
}
