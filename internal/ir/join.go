package ir

import (
	"fmt"
	"strings"
)

// JoinType is the integer join-mode code passed when creating sub-criteria.
// The values match the classic Criteria API join constants; 3 is unused.
type JoinType int

const (
	InnerJoin      JoinType = 0
	LeftOuterJoin  JoinType = 1
	RightOuterJoin JoinType = 2
	FullJoin       JoinType = 4
)

// Valid reports whether j is a known join code.
func (j JoinType) Valid() bool {
	switch j {
	case InnerJoin, LeftOuterJoin, RightOuterJoin, FullJoin:
		return true
	}
	return false
}

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "inner"
	case LeftOuterJoin:
		return "left"
	case RightOuterJoin:
		return "right"
	case FullJoin:
		return "full"
	default:
		return fmt.Sprintf("JoinType(%d)", int(j))
	}
}

// SQL returns the join keyword for j.
func (j JoinType) SQL() (string, error) {
	switch j {
	case InnerJoin:
		return "INNER JOIN", nil
	case LeftOuterJoin:
		return "LEFT JOIN", nil
	case RightOuterJoin:
		return "RIGHT JOIN", nil
	case FullJoin:
		return "FULL JOIN", nil
	default:
		return "", fmt.Errorf("unknown join type code %d", int(j))
	}
}

// ParseJoinType accepts a join name ("inner", "left", "left_outer", "right",
// "full") and returns its code.
func ParseJoinType(s string) (JoinType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner", "inner_join":
		return InnerJoin, nil
	case "left", "left_outer", "left_outer_join":
		return LeftOuterJoin, nil
	case "right", "right_outer", "right_outer_join":
		return RightOuterJoin, nil
	case "full", "full_join":
		return FullJoin, nil
	default:
		return 0, fmt.Errorf("unknown join type %q", s)
	}
}
