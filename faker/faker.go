package faker

import (
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

type fakerData struct {
	FirstNames      []string `json:"firstNames"`
	LastNames       []string `json:"lastNames"`
	StreetNames     []string `json:"streetNames"`
	Cities          []string `json:"cityNames"`
	Companies       []string `json:"companies"`
	CompanySuffixes []string `json:"companySuffixes"`
}

//go:embed en.json
var enData []byte

//go:embed fi.json
var fiData []byte

var dataMap = make(map[string]fakerData)

func init() {
	loadData("en", enData)
	loadData("fi", fiData)
}

func loadData(locale string, data []byte) {
	var fd fakerData
	err := json.Unmarshal(data, &fd)
	if err != nil {
		panic(err)
	}
	dataMap[locale] = fd
}

// Locales returns the available locales, sorted.
func Locales() []string {
	result := make([]string, 0, len(dataMap))
	for locale := range dataMap {
		result = append(result, locale)
	}
	sort.Strings(result)
	return result
}

type Faker struct {
	data fakerData
}

func New(locale string) (*Faker, error) {
	data, ok := dataMap[locale]
	if !ok {
		return nil, fmt.Errorf("unknown faker locale '%s' (available: %s)", locale, strings.Join(Locales(), ", "))
	}
	return &Faker{data: data}, nil
}

func (f *Faker) FuncMap() template.FuncMap {
	return template.FuncMap{
		"transformFirstName":   f.FirstName,
		"transformLastName":    f.LastName,
		"transformStreet":      f.Street,
		"transformCity":        f.City,
		"transformCompanyName": f.CompanyName,
		"transformFullName":    f.FullName,
	}
}

func (f *Faker) FirstName(input string) string {
	if input == "" {
		return ""
	}
	return pick(initRng(input), f.data.FirstNames)
}

func (f *Faker) LastName(input string) string {
	if input == "" {
		return ""
	}
	return pick(initRng(input), f.data.LastNames)
}

func (f *Faker) Street(input string) string {
	if input == "" {
		return ""
	}
	rng := initRng(input)
	streetNumber := rng.Intn(1000)
	return pick(rng, f.data.StreetNames) + " " + strconv.Itoa(streetNumber)
}

func (f *Faker) City(input string) string {
	if input == "" {
		return ""
	}
	return pick(initRng(input), f.data.Cities)
}

func (f *Faker) FullName(input string) string {
	if input == "" {
		return ""
	}
	firstName, lastName, _ := strings.Cut(input, " ")
	nameTokens := []string{
		f.FirstName(firstName),
		f.LastName(lastName),
	}
	return strings.TrimSpace(strings.Join(nameTokens, " "))
}

func (f *Faker) CompanyName(input string) string {
	if input == "" {
		return ""
	}
	rng := initRng(input)
	companyNameParts := []string{pick(rng, f.data.Companies)}
	// add second part?
	if rng.Float32() < 0.5 {
		companyNameParts = append(companyNameParts, pick(rng, f.data.Companies))
	}
	// add suffix?
	if rng.Float32() < 0.7 {
		companyNameParts = append(companyNameParts, pick(rng, f.data.CompanySuffixes))
	}
	return strings.Join(companyNameParts, " ")
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func initRng(input string) *rand.Rand {
	hash := sha256.Sum256([]byte(input))
	seed := binary.BigEndian.Uint64(hash[:8])
	return rand.New(rand.NewSource(int64(seed)))
}
