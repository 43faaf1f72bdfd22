package postgres

import "time"

type loanCandidateTableModel struct {
	ID            int64     `db:"id"`
	PlayerID      int64     `db:"player_id"`
	PlayerName    string    `db:"player_name"`
	PrimaryTeamID int64     `db:"primary_team_id"`
	LoanTeamID    int64     `db:"loan_team_id"`
	TransferDate  time.Time `db:"transfer_date"`
	Confidence    float64   `db:"confidence"`
	Source        string    `db:"source"`
	WindowKey     string    `db:"window_key"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type loanCandidateInsertModel struct {
	PlayerID      int64     `db:"player_id"`
	PlayerName    string    `db:"player_name"`
	PrimaryTeamID int64     `db:"primary_team_id"`
	LoanTeamID    int64     `db:"loan_team_id"`
	TransferDate  time.Time `db:"transfer_date"`
	Confidence    float64   `db:"confidence"`
	Source        string    `db:"source"`
	WindowKey     string    `db:"window_key"`
}

type detectionFailureInsertModel struct {
	WindowKey  string    `db:"window_key"`
	FailureKey string    `db:"failure_key"`
	Reason     string    `db:"reason"`
	OccurredAt time.Time `db:"occurred_at"`
}
