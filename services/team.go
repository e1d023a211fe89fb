package services

import (
	"math/rand"

	"tugofwar/models"
)

// assignTeam places a new participant. Auto mode balances headcount with ties
// going to red; random and manual both fall back to a coin flip at join time
// (manual rebalancing happens outside the join path). A team is never
// reassigned once chosen.
func assignTeam(sess *models.Session) string {
	if sess.Settings.TeamAssignment == models.TeamAssignAuto {
		red, blue := sess.TeamCounts()
		if red <= blue {
			return models.TeamRed
		}
		return models.TeamBlue
	}

	if rand.Intn(2) == 0 {
		return models.TeamRed
	}
	return models.TeamBlue
}
