// Package seed loads YAML fixtures into a store when the backend starts.
package seed

// Fixture: записи одного ресурса из файла <resource>.yaml
type Fixture struct {
	Resource string           `yaml:"resource"`
	Records  []map[string]any `yaml:"records"`
	// путь к файлу, для сообщений об ошибках
	Source string `yaml:"-"`
}

// Report: сколько записей вставлено по ресурсам; пропущенные ресурсы уже были заполнены.
type Report struct {
	Inserted map[string]int
	Skipped  []string
}
