package arxiv

import (
	_ "embed"
	"fmt"
	"strings"

	"arxiv-digest/internal/common"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var topicsYAML []byte

// Topic 是一个 arXiv 大类，例如 "Computer Science" (cs)
type Topic struct {
	Name       string   `yaml:"name"`
	Code       string   `yaml:"code"`
	Parent     string   `yaml:"parent"`
	Categories []string `yaml:"categories"`
}

// HasCategory 判断分类是否属于该 topic
func (t Topic) HasCategory(category string) bool {
	for _, c := range t.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Catalog 所有已知 topic
type Catalog struct {
	Topics []Topic `yaml:"topics"`
}

// LoadCatalog 解析内置的 topic 表
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(topicsYAML)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, common.WrapError(common.ErrCodeConfiguration, "无法解析 topic 表", err)
	}
	if len(c.Topics) == 0 {
		return nil, common.NewError(common.ErrCodeConfiguration, "topic 表为空")
	}
	return &c, nil
}

// Resolve 按名称 (或 listing 代码) 查找 topic，并检查分类是否属于它
func (c *Catalog) Resolve(topic string, categories []string) (*Topic, error) {
	var found *Topic
	for i := range c.Topics {
		if c.Topics[i].Name == topic {
			found = &c.Topics[i]
			break
		}
	}
	if found == nil {
		for i := range c.Topics {
			if c.Topics[i].Code != "" && strings.EqualFold(c.Topics[i].Code, topic) {
				found = &c.Topics[i]
				break
			}
		}
	}
	if found == nil {
		return nil, common.NewError(common.ErrCodeConfiguration, fmt.Sprintf("无效的 topic: %s", topic))
	}
	if found.Code == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, fmt.Sprintf("%s 需要选择一个子 topic", found.Name))
	}
	for _, category := range categories {
		if !found.HasCategory(category) {
			return nil, common.NewError(common.ErrCodeConfiguration, fmt.Sprintf("%s 不是 %s 的分类", category, found.Name))
		}
	}
	return found, nil
}

// ResolveCode 实现 port.TopicResolver
func (c *Catalog) ResolveCode(topic string, categories []string) (string, error) {
	t, err := c.Resolve(topic, categories)
	if err != nil {
		return "", err
	}
	return t.Code, nil
}
