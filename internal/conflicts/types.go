package conflicts

// Reference kinds a conflict can be computed against.
const (
	OntoBranch      = "branch"
	OntoPullRequest = "github-pr"
)

// Repository is a repository connected to the service and tracked by the agent.
type Repository struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
}

type Conflict struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repository_id"`
	Base         string `json:"base"`
	Onto         string `json:"onto"`
	OntoName     string `json:"onto_name"`
	OntoType     string `json:"onto_type"`   // branch|github-pr
	OntoRefID    string `json:"onto_ref_id"` // PR number for github-pr
	Conflicting  bool   `json:"conflicting"`

	IsConflictInWorkingDirectory bool `json:"is_conflict_in_working_directory"`

	CheckedAt        string   `json:"checked_at"`
	UserID           string   `json:"user_id"`
	ConflictingFiles []string `json:"conflicting_files"`
}

// IsPullRequest reports whether the conflict was computed against a pull request.
func (c Conflict) IsPullRequest() bool {
	return c.OntoType == OntoPullRequest
}

// TargetName is the name shown to the user for the conflict target.
func (c Conflict) TargetName() string {
	if c.IsPullRequest() {
		return "#" + c.OntoRefID
	}
	return c.OntoName
}

// ForRepo is the result of one conflict fetch for one tracked repository.
type ForRepo struct {
	RepoOwner string
	RepoName  string
	Conflicts []Conflict
}
