package steps

import (
	"fmt"
	"strconv"
	"strings"
)

// GetConfigString извлекает строковое значение из конфига.
// Числа и булевы значения приводятся к строке.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		case int64:
			return strconv.FormatInt(s, 10)
		case bool:
			return strconv.FormatBool(s)
		}
	}
	return ""
}

// GetConfigStringAny возвращает первое непустое строковое значение из списка ключей.
// Используется для поддержки устаревших имён ключей.
func GetConfigStringAny(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := GetConfigString(config, k); s != "" {
			return s
		}
	}
	return ""
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, ok := parseBool(b); ok {
				return parsed
			}
		}
	}
	return defaultVal
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}

// GetConfigStrings извлекает список строк из конфига.
// Одиночная строка интерпретируется как список из одного элемента.
func GetConfigStrings(config map[string]any, key string) []string {
	v, ok := config[key]
	if !ok {
		return nil
	}
	switch l := v.(type) {
	case []string:
		return l
	case string:
		if l == "" {
			return nil
		}
		return []string{l}
	case []any:
		result := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

// GetConfigList извлекает список объектов из конфига.
func GetConfigList(config map[string]any, key string) ([]map[string]any, error) {
	v, ok := config[key]
	if !ok || v == nil {
		return nil, nil
	}

	switch l := v.(type) {
	case []map[string]any:
		return l, nil
	case []any:
		result := make([]map[string]any, 0, len(l))
		for i, item := range l {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected object, got %T", key, i, item)
			}
			result = append(result, m)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%s: expected list, got %T", key, v)
	}
}

// parseBool разбирает строковое булево значение (true/1/yes/on).
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "y":
		return true, true
	case "false", "0", "no", "off", "n", "":
		return false, true
	default:
		return false, false
	}
}
