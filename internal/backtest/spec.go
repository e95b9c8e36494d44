package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"banyan/internal/logger"
)

// SweepSpec 描述一次参数扫描:fixed 是所有组合共用的覆盖项,
// grids 每个键给出候选值列表,全部键做笛卡尔积展开。
type SweepSpec struct {
	Name  string           `yaml:"name"`
	Fixed map[string]any   `yaml:"fixed"`
	Grids map[string][]any `yaml:"grids"`
}

// Combination 网格展开后的一个组合。
type Combination struct {
	Tag    string
	Params map[string]any
}

// Combinations 展开全部网格组合。组合数超过 limit 直接拒绝,
// 展开顺序与标签都是确定的:键按字典序,值按列表原序。
func (s SweepSpec) Combinations(limit int) ([]Combination, error) {
	if err := s.checkKeys(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.Grids))
	total := 1
	for key, values := range s.Grids {
		keys = append(keys, key)
		total *= len(values)
	}
	sort.Strings(keys)
	if limit > 0 && total > limit {
		return nil, fmt.Errorf("sweep %q expands to %d combinations, cap is %d", s.Name, total, limit)
	}

	combos := make([]Combination, 0, total)
	idx := make([]int, len(keys))
	for {
		params := make(map[string]any, len(s.Fixed)+len(keys))
		for k, v := range s.Fixed {
			params[k] = v
		}
		var tag strings.Builder
		for i, key := range keys {
			v := s.Grids[key][idx[i]]
			params[key] = v
			if i > 0 {
				tag.WriteByte(' ')
			}
			fmt.Fprintf(&tag, "%s=%v", shortKey(key), v)
		}
		label := tag.String()
		if label == "" {
			label = "fixed"
		}
		combos = append(combos, Combination{Tag: label, Params: params})

		// 里程表进位
		i := len(keys) - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(s.Grids[keys[i]]) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}
	return combos, nil
}

func (s SweepSpec) checkKeys() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sweep spec requires a name")
	}
	for key := range s.Fixed {
		if _, ok := paramSetters[key]; !ok {
			return fmt.Errorf("sweep %q: unknown fixed key %q", s.Name, key)
		}
	}
	for key, values := range s.Grids {
		if _, ok := paramSetters[key]; !ok {
			return fmt.Errorf("sweep %q: unknown grid key %q", s.Name, key)
		}
		if len(values) == 0 {
			return fmt.Errorf("sweep %q: grid %q has no values", s.Name, key)
		}
	}
	return nil
}

// shortKey 取键的末段作为标签,层级前缀对人眼是噪音。
func shortKey(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// sweepSchema 约束扫描文件的外形,值的语义由 setter 表把关。
var sweepSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"name"},
	"properties": map[string]interface{}{
		"name": map[string]interface{}{"type": "string", "minLength": 1},
		"fixed": map[string]interface{}{
			"type": "object",
		},
		"grids": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
			},
		},
	},
	"additionalProperties": false,
}

var (
	sweepSchemaOnce     sync.Once
	sweepSchemaCompiled *jsonschema.Schema
	sweepSchemaErr      error
)

func compiledSweepSchema() (*jsonschema.Schema, error) {
	sweepSchemaOnce.Do(func() {
		raw, err := json.Marshal(sweepSchema)
		if err != nil {
			sweepSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("sweep.json", strings.NewReader(string(raw))); err != nil {
			sweepSchemaErr = err
			return
		}
		sweepSchemaCompiled, sweepSchemaErr = compiler.Compile("sweep.json")
	})
	return sweepSchemaCompiled, sweepSchemaErr
}

// readSweepFile 严格解析扫描文件:未知字段报错,外形过 schema,
// 键过 setter 表。
func readSweepFile(path string) (SweepSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SweepSpec{}, fmt.Errorf("read sweep spec failed: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return SweepSpec{}, fmt.Errorf("parse sweep spec failed: %w", err)
	}
	schema, err := compiledSweepSchema()
	if err != nil {
		return SweepSpec{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return SweepSpec{}, fmt.Errorf("sweep spec invalid: %w", err)
	}

	var spec SweepSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return SweepSpec{}, fmt.Errorf("parse sweep spec failed: %w", err)
	}
	if err := spec.checkKeys(); err != nil {
		return SweepSpec{}, err
	}
	return spec, nil
}

// SpecListener 在扫描文件热更新后触发。
type SpecListener func(SweepSpec)

// SpecRegistry 持有当前扫描定义并监听文件变更。坏文件只记
// 日志,保留上一份可用定义。
type SpecRegistry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	spec      SweepSpec
	version   int64
	loadedAt  time.Time
	listeners []SpecListener
}

func NewSpecRegistry(path string) (*SpecRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sweep spec registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sweep spec failed: %w", err)
	}
	r := &SpecRegistry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("[sweep] 扫描定义重载失败: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

func (r *SpecRegistry) reload() error {
	spec, err := readSweepFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.spec = spec
	r.version++
	r.loadedAt = time.Now()
	version := r.version
	r.mu.Unlock()
	logger.Infof("[sweep] 扫描定义已加载 %s (v%d, 网格 %d 个)",
		filepath.Base(r.path), version, len(spec.Grids))
	return nil
}

// Spec 返回当前定义的副本。
func (r *SpecRegistry) Spec() SweepSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSpec(r.spec)
}

// Version 定义的加载代数,每次成功重载加一。
func (r *SpecRegistry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// OnChange 注册热更新回调,回调在独立 goroutine 中执行。
func (r *SpecRegistry) OnChange(fn SpecListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *SpecRegistry) notifyListeners() {
	r.mu.RLock()
	spec := cloneSpec(r.spec)
	listeners := append([]SpecListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb SpecListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("[sweep] 定义监听回调 panic: %v", rec)
				}
			}()
			cb(spec)
		}(fn)
	}
}

func cloneSpec(src SweepSpec) SweepSpec {
	dst := SweepSpec{Name: src.Name}
	if src.Fixed != nil {
		dst.Fixed = make(map[string]any, len(src.Fixed))
		for k, v := range src.Fixed {
			dst.Fixed[k] = v
		}
	}
	if src.Grids != nil {
		dst.Grids = make(map[string][]any, len(src.Grids))
		for k, v := range src.Grids {
			dst.Grids[k] = append([]any(nil), v...)
		}
	}
	return dst
}
