package model

type Operator struct {
	Login        string `json:"login"`
	PasswordHash []byte `json:"-"`
}
