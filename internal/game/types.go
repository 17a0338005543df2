package game

// Wire types for the game state the server broadcasts. Field names match
// the backend's JSON exactly; the snapshot is always consumed whole.

type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
	StatusCancelled  Status = "CANCELLED"
)

type MoveType string

const (
	MoveBid       MoveType = "BID"
	MoveChallenge MoveType = "CHALLENGE"
)

// Move is either a bid of (quantity, face value) or a challenge of the
// previous bid. Outbound moves only need Type and the bid fields; the
// rest is filled in by the server on the way back.
type Move struct {
	PlayerUsername string   `json:"playerUsername,omitempty"`
	Type           MoveType `json:"moveType"`
	BidQuantity    int      `json:"bidQuantity,omitempty"`
	BidFaceValue   int      `json:"bidFaceValue,omitempty"`
	DisplayText    string   `json:"displayText,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}

func (m Move) IsBid() bool       { return m.Type == MoveBid }
func (m Move) IsChallenge() bool { return m.Type == MoveChallenge }

func NewBid(quantity, faceValue int) Move {
	return Move{Type: MoveBid, BidQuantity: quantity, BidFaceValue: faceValue}
}

func NewChallenge() Move {
	return Move{Type: MoveChallenge}
}

// Player as seen by one viewer. Dice is only populated for the viewer's
// own seat; everyone else just gets the count.
type Player struct {
	Username    string `json:"username"`
	DiceCount   int    `json:"diceCount"`
	Active      bool   `json:"isActive"`
	PlayerOrder int    `json:"playerOrder"`
	Dice        []int  `json:"dice,omitempty"`
}

// Snapshot is the complete authoritative view of one game. It is
// replaced wholesale on every update, never merged field by field.
type Snapshot struct {
	GameID                int64    `json:"gameId"`
	Status                Status   `json:"status"`
	CurrentPlayerUsername string   `json:"currentPlayerUsername,omitempty"`
	RoundNumber           int      `json:"roundNumber"`
	Players               []Player `json:"players"`
	LastMove              *Move    `json:"lastMove,omitempty"`
	Winner                string   `json:"winner,omitempty"`
	UpdatedAt             string   `json:"updatedAt,omitempty"`
}

// IsTurn reports whether it is username's turn to act.
func (s *Snapshot) IsTurn(username string) bool {
	return s != nil && s.Status == StatusInProgress && s.CurrentPlayerUsername == username
}

// PlayerByUsername returns the named player, or nil.
func (s *Snapshot) PlayerByUsername(username string) *Player {
	if s == nil {
		return nil
	}
	for i := range s.Players {
		if s.Players[i].Username == username {
			return &s.Players[i]
		}
	}
	return nil
}

// Equal reports structural equality between two snapshots. Used by the
// store to suppress duplicate notifications; nil and empty dice slices
// compare equal.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.GameID != o.GameID ||
		s.Status != o.Status ||
		s.CurrentPlayerUsername != o.CurrentPlayerUsername ||
		s.RoundNumber != o.RoundNumber ||
		s.Winner != o.Winner ||
		s.UpdatedAt != o.UpdatedAt {
		return false
	}
	if !moveEqual(s.LastMove, o.LastMove) {
		return false
	}
	if len(s.Players) != len(o.Players) {
		return false
	}
	for i := range s.Players {
		if !playerEqual(s.Players[i], o.Players[i]) {
			return false
		}
	}
	return true
}

func moveEqual(a, b *Move) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func playerEqual(a, b Player) bool {
	if a.Username != b.Username ||
		a.DiceCount != b.DiceCount ||
		a.Active != b.Active ||
		a.PlayerOrder != b.PlayerOrder {
		return false
	}
	if len(a.Dice) != len(b.Dice) {
		return false
	}
	for i := range a.Dice {
		if a.Dice[i] != b.Dice[i] {
			return false
		}
	}
	return true
}
