package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	entityRe           = regexp.MustCompile(`^entity\s+(\w+)\s*:(.*)$`)
	mappingRe          = regexp.MustCompile(`^mapping\s+(\w+)\s*->\s*(\w+)\s*:\s*$`)
	fieldRe            = regexp.MustCompile(`^([A-Za-z_]\w*):\s*([^\s#]+)(.*)$`)
	pairRe             = regexp.MustCompile(`^(\w+)\s*->\s*(\w+)(?:\s+(\w+))?$`)
	enumRe             = regexp.MustCompile(`^enum\[(.*)\]$`)
	moduleRe           = regexp.MustCompile(`^module\s+([A-Za-z0-9_.-]+)$`)
	reConstraintsStart = regexp.MustCompile(`^constraints\s*:\s*$`)
	rePositiveTogether = regexp.MustCompile(`^positive_together\s*\(\s*([^)]+)\s*\)$`)
)

var knownTypes = map[string]struct{}{
	TypeString: {}, TypeNumber: {}, TypePhone: {}, TypeDate: {}, TypeEnum: {},
}

// splitOptionTokens делит "k=v k2='v 2' flag" на токены, не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t' || r == ',') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// parseOptions превращает токены в map: флаг без значения → "true".
func parseOptions(raw string) map[string]string {
	opts := map[string]string{}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	for _, tok := range splitOptionTokens(strings.TrimSpace(raw)) {
		if !strings.Contains(tok, "=") {
			opts[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		v := strings.TrimSpace(kv[1])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if k != "" {
			opts[k] = v
		}
	}
	return opts
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse читает один DSL-файл: сущности и таблицы соответствия.
func Parse(r io.Reader, name string) ([]*Entity, []Mapping, error) {
	var (
		entities      []*Entity
		mappings      []Mapping
		current       *Entity
		curMapping    *Mapping
		currentModule string
		inConstraints bool
		lineNo        int
	)

	closeBlocks := func() {
		if current != nil {
			entities = append(entities, current)
			current = nil
		}
		if curMapping != nil {
			mappings = append(mappings, *curMapping)
			curMapping = nil
		}
		inConstraints = false
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s:%d: %s", name, lineNo, fmt.Sprintf(format, args...))
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// module ...
		if m := moduleRe.FindStringSubmatch(line); m != nil {
			closeBlocks()
			currentModule = m[1]
			continue
		}

		// entity <Name>: resource=... readonly
		if m := entityRe.FindStringSubmatch(line); m != nil {
			closeBlocks()
			if currentModule == "" {
				return nil, nil, fail("entity %q has no module; add `module <name>` at the top", m[1])
			}
			opts := parseOptions(m[2])
			current = &Entity{
				Name:     m[1],
				Module:   currentModule,
				Resource: opts["resource"],
				ReadOnly: strings.EqualFold(opts["readonly"], "true"),
			}
			if current.Resource == "" {
				current.Resource = strings.ToLower(m[1]) + "s"
			}
			continue
		}

		// mapping <Source> -> <Target>:
		if m := mappingRe.FindStringSubmatch(line); m != nil {
			closeBlocks()
			curMapping = &Mapping{Source: m[1], Target: m[2]}
			continue
		}

		if curMapping != nil {
			m := pairRe.FindStringSubmatch(line)
			if m == nil {
				return nil, nil, fail("bad mapping line %q (want `source -> target [number]`)", line)
			}
			p := Pair{From: m[1], To: m[2], Coerce: strings.ToLower(m[3])}
			if p.Coerce != "" && p.Coerce != CoerceNumber {
				return nil, nil, fail("unknown coercion %q", m[3])
			}
			curMapping.Pairs = append(curMapping.Pairs, p)
			continue
		}

		if current == nil {
			return nil, nil, fail("unexpected line outside entity/mapping: %q", line)
		}

		// ----- БЛОК CONSTRAINTS -----
		if reConstraintsStart.MatchString(line) {
			inConstraints = true
			continue
		}
		if inConstraints {
			if m := rePositiveTogether.FindStringSubmatch(line); m != nil {
				set := splitList(m[1])
				if len(set) != 2 {
					return nil, nil, fail("positive_together needs exactly two fields, got %d", len(set))
				}
				current.Constraints.PositiveTogether = append(current.Constraints.PositiveTogether, [2]string{set[0], set[1]})
				continue
			}
			// любая другая строка — выходим из блока constraints и разбираем её как поле
			inConstraints = false
		}

		// Поля
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, nil, fail("bad field line %q", line)
		}
		rawType, tail := m[2], m[3]
		// склейка enum[...] с пробелами внутри
		if strings.HasPrefix(rawType, "enum[") && !strings.Contains(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType += tail[:idx+1]
				tail = tail[idx+1:]
			}
		}

		f := Field{Name: m[1], Type: rawType, Options: parseOptions(tail)}
		if em := enumRe.FindStringSubmatch(rawType); em != nil {
			f.Type = TypeEnum
			f.Enum = splitList(em[1])
			if len(f.Enum) == 0 {
				return nil, nil, fail("enum field %q has no values", f.Name)
			}
		}
		if _, ok := knownTypes[f.Type]; !ok {
			return nil, nil, fail("field %q: unknown type %q", f.Name, f.Type)
		}
		if IsSystemField(f.Name) {
			return nil, nil, fail("field %q is a system field", f.Name)
		}
		if _, dup := current.Field(f.Name); dup {
			return nil, nil, fail("duplicate field %q in %s", f.Name, current.Name)
		}
		current.Fields = append(current.Fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	closeBlocks()
	return entities, mappings, nil
}

// LoadFile разбирает один *.dsl файл.
func LoadFile(path string) ([]*Entity, []Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return Parse(file, path)
}

// LoadAll обходит каталог, собирает все *.dsl и проверяет результат линтером.
func LoadAll(root string) (*Catalog, error) {
	return loadFS(os.DirFS(root), ".")
}

func loadFS(fsys fs.FS, root string) (*Catalog, error) {
	var (
		entities []*Entity
		mappings []Mapping
	)
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		f, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		ents, maps, err := Parse(f, path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		entities = append(entities, ents...)
		mappings = append(mappings, maps...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	cat, err := NewCatalog(entities, mappings)
	if err != nil {
		return nil, err
	}
	if issues := cat.Lint(); len(issues) > 0 {
		return nil, &LintError{Issues: issues}
	}
	return cat, nil
}
