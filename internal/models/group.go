package models

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Member struct {
	UserId       string `json:"userId"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
	Role         Role   `json:"role"`
}

type Group struct {
	Id        string    `json:"id"`
	Name      string    `json:"group_name"`
	Image     string    `json:"group_image"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Member returns the member record for userId, if any.
func (g *Group) Member(userId string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserId == userId {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// Owner returns the current owner. A persisted group always has one.
func (g *Group) Owner() (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].Role == RoleOwner {
			return &g.Members[i], true
		}
	}
	return nil, false
}
