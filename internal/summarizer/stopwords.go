package summarizer

import "strings"

var stopwords = toSet(`a about above after again against all also am an and any are as at be because been
before being below between both but by can could did do does doing down during each either else
even ever every few for from further had has have having he her here hers herself him himself his
how however i if in into is it its itself just let may me might more most much must my myself
neither no nor not now of off often on once only or other otherwise our ours ourselves out over own
per perhaps please quite rather really same say says shall she should since so some still such than
that the their theirs them themselves then there these they this those though through thus to too
under until up upon us very via was we well were what whatever when where whether which while who
whom whose why will with within without would yet you your yours yourself yourselves`)

func toSet(words string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}
