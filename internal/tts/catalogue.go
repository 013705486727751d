package tts

// CatalogueEntry is one selectable voice shown by the /voice command and the
// control plane's sample endpoint.
type CatalogueEntry struct {
	Name string
	ID   int
}

// Catalogue is the curated voice roster, in display order.
var Catalogue = []CatalogueEntry{
	{Name: "四国めたん", ID: 2},
	{Name: "ずんだもん", ID: 3},
	{Name: "春日部つむぎ", ID: 8},
	{Name: "雨晴はう", ID: 10},
	{Name: "波音リツ", ID: 9},
	{Name: "玄野武宏", ID: 11},
	{Name: "白上虎太郎", ID: 12},
	{Name: "青山龍星", ID: 13},
	{Name: "冥鳴ひまり", ID: 14},
	{Name: "九州そら", ID: 16},
	{Name: "もち子さん", ID: 20},
	{Name: "剣崎雌雄", ID: 21},
	{Name: "WhiteCUL", ID: 23},
	{Name: "後鬼", ID: 27},
	{Name: "No.7", ID: 29},
	{Name: "ちび式じい", ID: 42},
	{Name: "櫻歌ミコ", ID: 43},
	{Name: "小夜/SAYO", ID: 46},
	{Name: "ナースロボ＿タイプＴ", ID: 47},
	{Name: "†聖騎士 紅桜†", ID: 51},
	{Name: "雀松朱司", ID: 52},
	{Name: "麒ヶ島宗麟", ID: 53},
	{Name: "春歌ナナ", ID: 54},
	{Name: "猫使アル", ID: 55},
	{Name: "猫使ビィ", ID: 58},
	{Name: "中国うさぎ", ID: 61},
	{Name: "栗田まろん", ID: 67},
	{Name: "あいえるたん", ID: 68},
	{Name: "満別花丸", ID: 69},
	{Name: "琴詠ニア", ID: 74},
	{Name: "Voidoll", ID: 89},
	{Name: "ぞん子", ID: 90},
	{Name: "中部つるぎ", ID: 94},
}

// CatalogueSpeaker looks up a catalogue entry by ID.
func CatalogueSpeaker(id int) (CatalogueEntry, bool) {
	for _, e := range Catalogue {
		if e.ID == id {
			return e, true
		}
	}
	return CatalogueEntry{}, false
}
