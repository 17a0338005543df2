package game

import "errors"

var ErrNotYourTurn = errors.New("not your turn")
var ErrNothingToChallenge = errors.New("nothing to challenge")
var ErrBidTooLow = errors.New("bid must be higher than the current bid")
var ErrBidOutOfRange = errors.New("bid quantity must be >= 1 and face value in 1..6")
var ErrUnsupportedMove = errors.New("unsupported move type")

// CheckMove decides whether candidate may be submitted, given the round's
// last move and whether it is the caller's turn. Pure; the server remains
// authoritative, this only gates obviously illegal submissions.
//
// A bid must strictly increase under (quantity, faceValue) ordering:
// higher quantity always wins, equal quantity needs a higher face value.
// Raising quantity while lowering face value is legal. A challenge is
// legal only against a prior bid.
func CheckMove(candidate Move, last *Move, myTurn bool) error {
	if !myTurn {
		return ErrNotYourTurn
	}

	switch candidate.Type {
	case MoveBid:
		if candidate.BidQuantity < 1 || candidate.BidFaceValue < 1 || candidate.BidFaceValue > 6 {
			return ErrBidOutOfRange
		}
		if last == nil || !last.IsBid() {
			// Round just started, or the previous action was a challenge.
			return nil
		}
		if candidate.BidQuantity > last.BidQuantity {
			return nil
		}
		if candidate.BidQuantity == last.BidQuantity && candidate.BidFaceValue > last.BidFaceValue {
			return nil
		}
		return ErrBidTooLow

	case MoveChallenge:
		if last == nil || !last.IsBid() {
			return ErrNothingToChallenge
		}
		return nil

	default:
		return ErrUnsupportedMove
	}
}

// IsLegal is the boolean form of CheckMove.
func IsLegal(candidate Move, last *Move, myTurn bool) bool {
	return CheckMove(candidate, last, myTurn) == nil
}
