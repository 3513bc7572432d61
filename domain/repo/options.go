package repo

// WithID filters by the "id" column.
func WithID(id int64) Option {
	return WithCondition("id", id)
}

// WithRepoID filters by the "repo_id" column.
func WithRepoID(id int64) Option {
	return WithCondition("repo_id", id)
}

// WithURL filters by the canonical "repo_url" column.
func WithURL(url string) Option {
	return WithCondition("repo_url", url)
}

// WithPath filters by the "path" column.
func WithPath(path string) Option {
	return WithCondition("path", path)
}

// WithPathIn filters by the "path" column using IN.
func WithPathIn(paths []string) Option {
	return WithConditionIn("path", paths)
}

// WithStatus filters by the "status" column.
func WithStatus(status Status) Option {
	return WithCondition("status", string(status))
}

// WithKind filters by the "kind" column.
func WithKind(kind NodeKind) Option {
	return WithCondition("kind", string(kind))
}
