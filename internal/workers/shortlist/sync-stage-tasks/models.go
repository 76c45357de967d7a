package syncstagetasks

type Input struct {
	UserID string `json:"userId"`
	Stage  int    `json:"stage"`
}

type Output struct {
	UserID       string `json:"userId"`
	Stage        int    `json:"stage"`
	TasksCreated int    `json:"tasksCreated"`
}
