package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/swiftlybot/yomiage/internal/app"
	"github.com/swiftlybot/yomiage/internal/dictionary"
	"github.com/swiftlybot/yomiage/internal/store"
	"github.com/swiftlybot/yomiage/internal/tts"
)

// CommandStore is the persistence surface the slash commands write to.
type CommandStore interface {
	SetAutojoinRule(ctx context.Context, r store.AutojoinRule) error
	DeleteAutojoinRule(ctx context.Context, guildID string) error
	SetUserSpeakerID(ctx context.Context, userID, speakerID string) error
	SetVoiceSpeed(ctx context.Context, guildID string, speed float64) error
	DeleteVoiceSpeed(ctx context.Context, guildID string) error
	UpsertGuildEntry(ctx context.Context, guildID, key, value, authorID string) error
	RemoveGuildEntry(ctx context.Context, guildID, key string) error
}

// DictionaryInvalidator drops cached dictionary tiers after an edit.
type DictionaryInvalidator interface {
	Invalidate(ctx context.Context, scope dictionary.Scope, key string)
}

// CommandDeps wires the slash command handlers.
type CommandDeps struct {
	Bot      *Bot
	Sessions *app.SessionManager
	Store    CommandStore
	Dict     DictionaryInvalidator
}

// RegisterCommands registers the relay's slash command surface on the
// bot's router.
func RegisterCommands(d CommandDeps) {
	r := d.Bot.Router()

	r.RegisterCommand("join", &discordgo.ApplicationCommand{
		Name:        "join",
		Description: "参加しているボイスチャンネルで読み上げを開始します",
	}, d.handleJoin)

	r.RegisterCommand("leave", &discordgo.ApplicationCommand{
		Name:        "leave",
		Description: "読み上げを終了してボイスチャンネルから退出します",
	}, d.handleLeave)

	channelOpt := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  "自動参加を監視するボイスチャンネル",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
		Required:     true,
	}
	r.RegisterCommand("autojoin/set", &discordgo.ApplicationCommand{
		Name:        "autojoin",
		Description: "ボイスチャンネルへの自動参加を設定します",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "自動参加を有効にします",
				Options:     []*discordgo.ApplicationCommandOption{channelOpt},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "自動参加を無効にします",
			},
		},
	}, d.handleAutojoinSet)
	r.RegisterCommand("autojoin/clear", nil, d.handleAutojoinClear)

	r.RegisterCommand("speaker", &discordgo.ApplicationCommand{
		Name:        "speaker",
		Description: "自分の読み上げ音声を変更します",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "id",
			Description: "話者ID",
			Required:    true,
		}},
	}, d.handleSpeaker)

	r.RegisterCommand("speed", &discordgo.ApplicationCommand{
		Name:        "speed",
		Description: "サーバーの読み上げ速度を変更します",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionNumber,
			Name:        "value",
			Description: "再生速度 (0.5〜2.0、省略でリセット)",
		}},
	}, d.handleSpeed)

	r.RegisterCommand("dictionary/add", &discordgo.ApplicationCommand{
		Name:        "dictionary",
		Description: "サーバー辞書を編集します",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "単語を登録します",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "word", Description: "置換元", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "reading", Description: "読み", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "単語を削除します",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "word", Description: "置換元", Required: true},
				},
			},
		},
	}, d.handleDictionaryAdd)
	r.RegisterCommand("dictionary/remove", nil, d.handleDictionaryRemove)

	r.RegisterCommand("ban", &discordgo.ApplicationCommand{
		Name:        "ban",
		Description: "ユーザーを読み上げ対象から除外します (管理者のみ)",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "対象ユーザー",
			Required:    true,
		}},
	}, d.handleBan)

	r.RegisterCommand("unban", &discordgo.ApplicationCommand{
		Name:        "unban",
		Description: "読み上げ除外を解除します (管理者のみ)",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "対象ユーザー",
			Required:    true,
		}},
	}, d.handleUnban)
}

func (d CommandDeps) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil {
		RespondEphemeral(s, i, "サーバー内で実行してください。")
		return
	}
	vs, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		RespondEphemeral(s, i, "先にボイスチャンネルへ参加してください。")
		return
	}
	if err := d.Sessions.Join(context.Background(), i.GuildID, vs.ChannelID, i.ChannelID, i.Member.User.ID); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "接続しました",
		Description: "このチャンネルのメッセージを読み上げます。`s` でスキップできます。",
		Color:       0x57f287,
	})
}

func (d CommandDeps) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := d.Sessions.Leave(context.Background(), i.GuildID); err != nil {
		RespondEphemeral(s, i, "読み上げ中ではありません。")
		return
	}
	RespondEphemeral(s, i, "切断しました。")
}

func (d CommandDeps) handleAutojoinSet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	if len(opts) == 0 {
		RespondEphemeral(s, i, "チャンネルを指定してください。")
		return
	}
	channel := opts[0].ChannelValue(s)
	rule := store.AutojoinRule{
		GuildID:      i.GuildID,
		VCChannelID:  channel.ID,
		TTSChannelID: i.ChannelID,
	}
	if err := d.Store.SetAutojoinRule(context.Background(), rule); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, fmt.Sprintf("<#%s> への自動参加を有効にしました。読み上げ先はこのチャンネルです。", channel.ID))
}

func (d CommandDeps) handleAutojoinClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := d.Store.DeleteAutojoinRule(context.Background(), i.GuildID); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, "自動参加を無効にしました。")
}

func (d CommandDeps) handleSpeaker(s *discordgo.Session, i *discordgo.InteractionCreate) {
	id := int(i.ApplicationCommandData().Options[0].IntValue())
	sp, ok := tts.CatalogueSpeaker(id)
	if !ok {
		RespondEphemeral(s, i, "その話者IDは存在しません。")
		return
	}
	userID := i.Member.User.ID
	if err := d.Store.SetUserSpeakerID(context.Background(), userID, strconv.Itoa(id)); err != nil {
		RespondError(s, i, err)
		return
	}
	d.Sessions.InvalidateUserVoice(userID)
	RespondEphemeral(s, i, fmt.Sprintf("読み上げ音声を「%s」に変更しました。", sp.Name))
}

func (d CommandDeps) handleSpeed(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	ctx := context.Background()
	if len(opts) == 0 {
		if err := d.Store.DeleteVoiceSpeed(ctx, i.GuildID); err != nil {
			RespondError(s, i, err)
			return
		}
		RespondEphemeral(s, i, "読み上げ速度をリセットしました。")
		return
	}
	speed := opts[0].FloatValue()
	if speed < 0.5 || speed > 2.0 {
		RespondEphemeral(s, i, "速度は0.5〜2.0の範囲で指定してください。")
		return
	}
	if err := d.Store.SetVoiceSpeed(ctx, i.GuildID, speed); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, fmt.Sprintf("読み上げ速度を%.2fに変更しました。", speed))
}

func (d CommandDeps) handleDictionaryAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	word, reading := opts[0].StringValue(), opts[1].StringValue()
	ctx := context.Background()
	if err := d.Store.UpsertGuildEntry(ctx, i.GuildID, word, reading, i.Member.User.ID); err != nil {
		RespondError(s, i, err)
		return
	}
	d.Dict.Invalidate(ctx, dictionary.ScopeGuild, i.GuildID)
	RespondEphemeral(s, i, fmt.Sprintf("「%s」を「%s」として登録しました。", word, reading))
}

func (d CommandDeps) handleDictionaryRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	word := i.ApplicationCommandData().Options[0].Options[0].StringValue()
	ctx := context.Background()
	if err := d.Store.RemoveGuildEntry(ctx, i.GuildID, word); err != nil {
		RespondError(s, i, err)
		return
	}
	d.Dict.Invalidate(ctx, dictionary.ScopeGuild, i.GuildID)
	RespondEphemeral(s, i, fmt.Sprintf("「%s」を削除しました。", word))
}

func (d CommandDeps) handleBan(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || !d.Bot.IsAdmin(i.Member.User.ID) {
		RespondEphemeral(s, i, "このコマンドは管理者のみ実行できます。")
		return
	}
	user := i.ApplicationCommandData().Options[0].UserValue(s)
	if err := d.Sessions.Ban(context.Background(), user.ID); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, fmt.Sprintf("<@%s> を読み上げ対象から除外しました。", user.ID))
}

func (d CommandDeps) handleUnban(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || !d.Bot.IsAdmin(i.Member.User.ID) {
		RespondEphemeral(s, i, "このコマンドは管理者のみ実行できます。")
		return
	}
	user := i.ApplicationCommandData().Options[0].UserValue(s)
	if err := d.Sessions.Unban(context.Background(), user.ID); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, fmt.Sprintf("<@%s> の読み上げ除外を解除しました。", user.ID))
}
