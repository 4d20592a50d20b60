package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller: аутентифицированный пользователь запроса. nil означает гостя.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanManage проверяет, может ли вызывающий управлять ресурсом владельца ownerID
func (c *Caller) CanManage(ownerID string) bool {
	if c == nil {
		return false
	}
	return c.Role == RoleAdmin || c.ID == ownerID
}
