// ABOUTME: Background cleanup of expired refresh tokens.
// ABOUTME: Prevents unbounded growth of the refresh_tokens table.

package main

import (
	"context"
	"log"
	"time"
)

// cleanupExpired deletes expired refresh tokens and returns how many went.
func (s *Server) cleanupExpired(ctx context.Context) int64 {
	n, err := s.repo.DeleteExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		log.Printf("cleanup refresh tokens error: %v", err)
		return 0
	}
	return n
}

// startCleanupRoutine runs cleanup every hour in background.
func (s *Server) startCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.cleanupExpired(ctx); n > 0 {
					log.Printf("cleanup: purged %d refresh tokens", n)
				}
			}
		}
	}()
}
