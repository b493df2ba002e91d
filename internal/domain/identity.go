package domain

// Identity данные автора, которые посетитель может попросить запомнить
type Identity struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Website  string `json:"website"`
	Remember bool   `json:"remember"`
}
