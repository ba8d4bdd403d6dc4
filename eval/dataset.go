package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/docgraph/graph"
)

// Dataset is a collection of texts with the triples a rule table is
// expected to extract from them.
type Dataset struct {
	Name  string     `json:"name" yaml:"name"`
	Cases []TestCase `json:"cases" yaml:"cases"`
}

// TestCase pairs an input text with its expected, deduplicated triples.
type TestCase struct {
	Name     string         `json:"name" yaml:"name"`
	Text     string         `json:"text" yaml:"text"`
	Expected []graph.Triple `json:"expected" yaml:"expected"`
	Category string         `json:"category,omitempty" yaml:"category,omitempty"`
}

// LoadDataset reads a YAML dataset file.
func LoadDataset(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(ds.Cases) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no cases", path)
	}
	if ds.Name == "" {
		ds.Name = path
	}
	return ds, nil
}

func project(name, tech string) graph.Triple {
	return graph.Triple{SubjectType: graph.LabelProject, SubjectName: name, Relation: graph.RelUsesTech, ObjectType: graph.LabelTechnology, ObjectName: tech}
}

func conducts(company, proj string) graph.Triple {
	return graph.Triple{SubjectType: graph.LabelCompany, SubjectName: company, Relation: graph.RelConducts, ObjectType: graph.LabelProject, ObjectName: proj}
}

func belongs(company, industry string) graph.Triple {
	return graph.Triple{SubjectType: graph.LabelCompany, SubjectName: company, Relation: graph.RelBelongsTo, ObjectType: graph.LabelIndustry, ObjectName: industry}
}

// ReportDataset returns cases for the built-in rule table, drawn from IT
// consulting report phrasing.
func ReportDataset() Dataset {
	return Dataset{
		Name: "IT consulting reports",
		Cases: []TestCase{
			{
				Name:     "technology",
				Text:     "프로젝트 AAA은 Python 기술을 사용하며, 주니어 컨설턴트 3명이 수행했습니다.",
				Expected: []graph.Triple{project("프로젝트 AAA", "Python")},
				Category: "single-relation",
			},
			{
				Name:     "company conducts project",
				Text:     "B 컴퍼니에서 프로젝트 BBB를 수행했습니다.",
				Expected: []graph.Triple{conducts("B 컴퍼니", "프로젝트 BBB")},
				Category: "single-relation",
			},
			{
				Name:     "industry",
				Text:     "서론: A 컴퍼니는 금융 산업 분야의 선두 주자입니다.",
				Expected: []graph.Triple{belongs("A 컴퍼니", "금융")},
				Category: "single-relation",
			},
			{
				Name: "mixed paragraph",
				Text: "프로젝트 BBB은 AWS 기술을 사용하며, B 컴퍼니에서 프로젝트 BBB를 수행했습니다. " +
					"C 컴퍼니에서 프로젝트 CCC를 수행했으며, 프로젝트 CCC은 Java 기술을 사용했습니다.",
				Expected: []graph.Triple{
					project("프로젝트 BBB", "AWS"),
					project("프로젝트 CCC", "Java"),
					conducts("B 컴퍼니", "프로젝트 BBB"),
					conducts("C 컴퍼니", "프로젝트 CCC"),
				},
				Category: "multi-relation",
			},
			{
				Name:     "repeated sentence",
				Text:     "B 컴퍼니에서 프로젝트 BBB를 수행했습니다. B 컴퍼니에서 프로젝트 BBB를 수행했습니다.",
				Expected: []graph.Triple{conducts("B 컴퍼니", "프로젝트 BBB")},
				Category: "dedup",
			},
			{
				Name:     "no relation",
				Text:     "이 프로젝트는 인공지능 산업 분야의 중요한 레퍼런스입니다.",
				Category: "negative",
			},
		},
	}
}
