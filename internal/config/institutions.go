package config

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// InstitutionsFile points at an optional YAML file of institution profiles
// that extends or overrides the built-in set.
type InstitutionsFile struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Institution is everything the pipeline knows about one university: its
// OpenAlex identity, the email domains its faculty legitimately use, and
// scraping hints accumulated from past runs.
type Institution struct {
	Key           string   `yaml:"-"`
	Name          string   `yaml:"name"`
	OpenAlexID    string   `yaml:"openalex_id"`
	EmailDomains  []string `yaml:"email_domains"`
	WebsiteDomain string   `yaml:"website_domain"`
	Directories   []string `yaml:"directories"`

	// SkipEmailSites lists hosts known to never expose emails; email
	// extraction skips them outright.
	SkipEmailSites []string `yaml:"skip_email_sites"`

	// ContactPageSites lists hosts that hide emails on the main page but
	// expose them on /contact-style subpages.
	ContactPageSites []string `yaml:"contact_page_sites"`
}

// ShortName returns the first word of the institution name, used to verify
// an author's primary affiliation loosely ("Harvard" matches both "Harvard
// University" and "Harvard Medical School").
func (i Institution) ShortName() string {
	fields := strings.Fields(i.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// AllowsEmailDomain reports whether an email address ends in one of the
// institution's accepted domains.
func (i Institution) AllowsEmailDomain(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range i.EmailDomains {
		d = strings.ToLower(d)
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func hostMatches(host string, sites []string) bool {
	host = strings.ToLower(host)
	for _, s := range sites {
		s = strings.ToLower(s)
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// SkipsEmailExtraction reports whether a host is on the skip list.
func (i Institution) SkipsEmailExtraction(host string) bool {
	return hostMatches(host, i.SkipEmailSites)
}

// WantsContactPage reports whether a host is known to hide emails behind
// contact subpages.
func (i Institution) WantsContactPage(host string) bool {
	return hostMatches(host, i.ContactPageSites)
}

// BuiltinInstitutions returns the institution profiles shipped with the
// binary.
func BuiltinInstitutions() map[string]Institution {
	return map[string]Institution{
		"harvard": {
			Key:        "harvard",
			Name:       "Harvard University",
			OpenAlexID: "I136199984",
			EmailDomains: []string{
				"harvard.edu", "hms.harvard.edu", "hsph.harvard.edu",
				"fas.harvard.edu", "hbs.edu", "dfci.harvard.edu",
				"mgh.harvard.edu", "bwh.harvard.edu", "childrens.harvard.edu",
				"broadinstitute.org", "dana-farber.org", "bidmc.harvard.edu",
				"meei.harvard.edu", "mclean.harvard.edu", "hsdm.harvard.edu",
				"massgeneral.org", "brighamandwomens.org", "mgh.org",
			},
			WebsiteDomain: "harvard.edu",
			Directories: []string{
				"https://chemistry.harvard.edu/people",
				"https://physics.harvard.edu/people/faculty",
				"https://psychology.fas.harvard.edu/people",
				"https://economics.harvard.edu/faculty",
				"https://sociology.fas.harvard.edu/people",
				"https://statistics.fas.harvard.edu/people",
				"https://gov.harvard.edu/people",
				"https://www.mcb.harvard.edu/directory/faculty/",
				"https://sysbio.med.harvard.edu/faculty",
			},
			SkipEmailSites:   []string{"connects.catalyst.harvard.edu", "vcp.med.harvard.edu"},
			ContactPageSites: []string{"hsph.harvard.edu", "hms.harvard.edu"},
		},
		"mit": {
			Key:           "mit",
			Name:          "Massachusetts Institute of Technology",
			OpenAlexID:    "I63966007",
			EmailDomains:  []string{"mit.edu"},
			WebsiteDomain: "mit.edu",
		},
		"stanford": {
			Key:           "stanford",
			Name:          "Stanford University",
			OpenAlexID:    "I97018004",
			EmailDomains:  []string{"stanford.edu"},
			WebsiteDomain: "stanford.edu",
		},
	}
}

// LoadInstitutions merges profiles from a YAML file over the built-ins.
// An empty path returns just the built-ins.
func LoadInstitutions(path string) (map[string]Institution, error) {
	insts := BuiltinInstitutions()
	if path == "" {
		return insts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read institutions file %s", path)
	}
	var fromFile map[string]Institution
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, eris.Wrapf(err, "config: parse institutions file %s", path)
	}
	for key, inst := range fromFile {
		inst.Key = key
		insts[key] = inst
	}
	return insts, nil
}

// InstitutionKeys returns the sorted keys of an institution set, for help
// text and error messages.
func InstitutionKeys(insts map[string]Institution) []string {
	keys := make([]string, 0, len(insts))
	for k := range insts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
